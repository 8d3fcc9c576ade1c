package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell a malformed request from a
// rule violation, a lost race or a broken dependency.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindPartyNotFound          Kind = "party_not_found"
	KindPartyUnavailable       Kind = "party_unavailable"
	KindDuplicateActive        Kind = "duplicate_active_suggestion"
	KindSuggestionNotFound     Kind = "suggestion_not_found"
	KindInvalidTransition      Kind = "invalid_transition"
	KindForbidden              Kind = "forbidden"
	KindConcurrentModification Kind = "concurrent_modification"
	KindInfrastructure         Kind = "infrastructure"
)

const kindUnknown Kind = ""

// Error is the error type returned by the lifecycle engine and the store.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of reason or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrPartyNotFound          = &Error{Kind: KindPartyNotFound}
	ErrPartyUnavailable       = &Error{Kind: KindPartyUnavailable}
	ErrDuplicateActive        = &Error{Kind: KindDuplicateActive}
	ErrSuggestionNotFound     = &Error{Kind: KindSuggestionNotFound}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrInfrastructure         = &Error{Kind: KindInfrastructure}
)

func New(kind Kind, reason string) error { return &Error{Kind: kind, Reason: reason} }

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Validation(reason string) error { return New(KindValidation, reason) }

// Infrastructure wraps a dependency failure. Domain errors pass through
// untouched so their kind is never lost.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInfrastructure, Reason: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return kindUnknown
}

// IsRetryable reports whether re-reading state and trying again can succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConcurrentModification, KindInfrastructure:
		return true
	}
	return false
}
