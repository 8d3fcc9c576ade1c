// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Domain is stamped on every ErrorInfo detail.
const Domain = "matchmaker"

var kindCodes = map[Kind]codes.Code{
	KindValidation:             codes.InvalidArgument,
	KindPartyNotFound:          codes.NotFound,
	KindSuggestionNotFound:     codes.NotFound,
	KindPartyUnavailable:       codes.FailedPrecondition,
	KindInvalidTransition:      codes.FailedPrecondition,
	KindDuplicateActive:        codes.AlreadyExists,
	KindForbidden:              codes.PermissionDenied,
	KindConcurrentModification: codes.Aborted,
	KindInfrastructure:         codes.Unavailable,
}

// Map converts engine/repo/infra errors into gRPC-friendly status errors.
// Domain errors carry an ErrorInfo detail whose Reason is the error kind.
func Map(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")
	}

	kind := KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}

	msg := err.Error()
	if kind == KindInfrastructure {
		msg = "temporarily unavailable, retry later"
	}

	st := status.New(code, msg)
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: Domain,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonOf extracts the ErrorInfo reason from a gRPC status error, or "".
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in the service layer for bad wire input.
func InvalidArgument(msg string) error {
	return Map(Validation(msg))
}
