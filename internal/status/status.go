// Package status holds the suggestion status set and the fixed table of
// allowed transitions between them.
package status

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the lifecycle state of a suggestion.
type Status string

const (
	Draft                      Status = "DRAFT"
	PendingFirstParty          Status = "PENDING_FIRST_PARTY"
	FirstPartyApproved         Status = "FIRST_PARTY_APPROVED"
	FirstPartyDeclined         Status = "FIRST_PARTY_DECLINED"
	PendingSecondParty         Status = "PENDING_SECOND_PARTY"
	SecondPartyApproved        Status = "SECOND_PARTY_APPROVED"
	SecondPartyDeclined        Status = "SECOND_PARTY_DECLINED"
	AwaitingMatchmakerApproval Status = "AWAITING_MATCHMAKER_APPROVAL"
	ContactDetailsShared       Status = "CONTACT_DETAILS_SHARED"
	AwaitingFirstDateFeedback  Status = "AWAITING_FIRST_DATE_FEEDBACK"
	ThinkingAfterDate          Status = "THINKING_AFTER_DATE"
	ProceedingToSecondDate     Status = "PROCEEDING_TO_SECOND_DATE"
	EndedAfterFirstDate        Status = "ENDED_AFTER_FIRST_DATE"
	MeetingPending             Status = "MEETING_PENDING"
	MeetingScheduled           Status = "MEETING_SCHEDULED"
	MatchApproved              Status = "MATCH_APPROVED"
	MatchDeclined              Status = "MATCH_DECLINED"
	Dating                     Status = "DATING"
	Engaged                    Status = "ENGAGED"
	Married                    Status = "MARRIED"
	Expired                    Status = "EXPIRED"
	Closed                     Status = "CLOSED"
	Cancelled                  Status = "CANCELLED"
)

// Category groups statuses the way matchmaker dashboards bucket them.
type Category string

const (
	CategoryPending Category = "PENDING"
	CategoryActive  Category = "ACTIVE"
	CategoryHistory Category = "HISTORY"
)

// transitions is the whitelist of allowed moves. A status missing from the
// map, or a target missing from its set, is denied.
var transitions = map[Status]map[Status]struct{}{
	Draft:                      set(PendingFirstParty),
	PendingFirstParty:          set(FirstPartyApproved, FirstPartyDeclined, Cancelled),
	FirstPartyApproved:         set(PendingSecondParty, Cancelled),
	FirstPartyDeclined:         set(Closed),
	PendingSecondParty:         set(SecondPartyApproved, SecondPartyDeclined, Cancelled),
	SecondPartyApproved:        set(ContactDetailsShared, Cancelled),
	SecondPartyDeclined:        set(Closed),
	AwaitingMatchmakerApproval: set(ContactDetailsShared, Cancelled),
	ContactDetailsShared:       set(AwaitingFirstDateFeedback, Cancelled),
	AwaitingFirstDateFeedback:  set(ThinkingAfterDate, EndedAfterFirstDate, Cancelled),
	ThinkingAfterDate:          set(ProceedingToSecondDate, EndedAfterFirstDate, Cancelled),
	ProceedingToSecondDate:     set(Dating, Cancelled),
	EndedAfterFirstDate:        set(Closed),
	MeetingPending:             set(MeetingScheduled, Cancelled),
	MeetingScheduled:           set(Dating, Cancelled),
	MatchApproved:              set(Dating, Cancelled),
	MatchDeclined:              set(Closed),
	Dating:                     set(Engaged, Closed, Cancelled),
	Engaged:                    set(Married, Cancelled),
	Married:                    set(),
	Expired:                    set(),
	Closed:                     set(),
	Cancelled:                  set(),
}

// unreachable lists statuses that stay in the table but are not produced by
// any creation or response path yet. They belong to a matchmaker-approval
// branch that has not been built.
var unreachable = set(
	AwaitingMatchmakerApproval,
	MeetingPending,
	MeetingScheduled,
	MatchApproved,
	MatchDeclined,
)

var inactive = set(Closed, Cancelled, Expired, MatchDeclined)

func set(ss ...Status) map[Status]struct{} {
	m := make(map[Status]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}

// IsAllowed reports whether a suggestion in current may move to requested.
func IsAllowed(current, requested Status) bool {
	targets, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = targets[requested]
	return ok
}

// AllowedTargets returns the statuses reachable from s in one hop, sorted.
func AllowedTargets(s Status) []Status {
	targets := transitions[s]
	out := make([]Status, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every known status, sorted.
func All() []Status {
	out := make([]Status, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// IsActive reports whether a suggestion in s still blocks a new suggestion
// for the same pair.
func (s Status) IsActive() bool {
	if !s.Valid() {
		return false
	}
	_, ok := inactive[s]
	return !ok
}

// IsAwaitingResponse reports whether s waits on a party's reply and is
// therefore subject to the response deadline.
func (s Status) IsAwaitingResponse() bool {
	return s == PendingFirstParty || s == PendingSecondParty
}

// Unreachable reports whether s is kept for completeness but never produced.
func (s Status) Unreachable() bool {
	_, ok := unreachable[s]
	return ok
}

// Category buckets s into pending, active or history.
func (s Status) Category() Category {
	switch s {
	case Draft, AwaitingMatchmakerApproval, PendingFirstParty, PendingSecondParty:
		return CategoryPending
	case FirstPartyDeclined, SecondPartyDeclined, MatchDeclined, EndedAfterFirstDate,
		Engaged, Married, Expired, Closed, Cancelled:
		return CategoryHistory
	default:
		return CategoryActive
	}
}

func (s Status) String() string { return string(s) }

// Parse converts a wire value into a Status. Matching ignores case and
// surrounding space.
func Parse(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// AwaitingResponse returns the statuses the deadline sweeper watches.
func AwaitingResponse() []Status {
	return []Status{PendingFirstParty, PendingSecondParty}
}

// Inactive returns the statuses that release the pair for a new suggestion.
func Inactive() []Status {
	return []Status{Cancelled, Closed, Expired, MatchDeclined}
}
