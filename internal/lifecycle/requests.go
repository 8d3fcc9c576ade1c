package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/status"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Role is who asks for a transition.
type Role string

const (
	RoleMatchmaker  Role = "matchmaker"
	RoleFirstParty  Role = "first_party"
	RoleSecondParty Role = "second_party"
	RoleSystem      Role = "system"
)

// Actor identifies the caller. ID is ignored for the system role.
type Actor struct {
	Role Role   `validate:"required,oneof=matchmaker first_party second_party system"`
	ID   uint64 `validate:"required_unless=Role system"`
}

// SystemActor is used by the sweeper and the auto-advance worker.
func SystemActor() Actor { return Actor{Role: RoleSystem} }

// CreateRequest proposes a new pairing.
type CreateRequest struct {
	MatchmakerID     uint64      `validate:"required"`
	FirstPartyID     uint64      `validate:"required"`
	SecondPartyID    uint64      `validate:"required,nefield=FirstPartyID"`
	Priority         db.Priority `validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	MatchingReason   string      `validate:"max=4000"`
	FirstPartyNotes  string      `validate:"max=4000"`
	SecondPartyNotes string      `validate:"max=4000"`
	InternalNotes    string      `validate:"max=4000"`
	DecisionDeadline time.Time   `validate:"required"`
}

// TransitionRequest asks to move a suggestion to RequestedStatus.
type TransitionRequest struct {
	SuggestionID    string        `validate:"required"`
	RequestedStatus status.Status `validate:"required"`
	Notes           string        `validate:"max=4000"`
	Actor           Actor
}

// DetailsPatch edits narrative fields, priority and deadlines. Nil fields
// are left untouched.
type DetailsPatch struct {
	MatchingReason   *string      `validate:"omitempty,max=4000"`
	FirstPartyNotes  *string      `validate:"omitempty,max=4000"`
	SecondPartyNotes *string      `validate:"omitempty,max=4000"`
	InternalNotes    *string      `validate:"omitempty,max=4000"`
	FollowUpNotes    *string      `validate:"omitempty,max=4000"`
	Priority         *db.Priority `validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	DecisionDeadline *time.Time
	ResponseDeadline *time.Time
}

func (p DetailsPatch) empty() bool {
	return p.MatchingReason == nil && p.FirstPartyNotes == nil && p.SecondPartyNotes == nil &&
		p.InternalNotes == nil && p.FollowUpNotes == nil && p.Priority == nil &&
		p.DecisionDeadline == nil && p.ResponseDeadline == nil
}

// ListFilter narrows ListActive. Zero ids mean "any".
type ListFilter struct {
	MatchmakerID uint64
	PartyID      uint64
	PageToken    string
	Limit        int `validate:"gte=0,lte=100"`
}

// HistoryFilter narrows History. Nil bounds are open; Limit 0 means the default of 50.
type HistoryFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int `validate:"gte=0,lte=500"`
}

// validateStruct runs the struct tags and flattens failures into one
// Validation error.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return svcErr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	return svcErr.Validation(strings.Join(msgs, "; "))
}
