package lifecycle

import (
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/status"
)

// responderFor names the only role that may answer on a party's behalf.
var responderFor = map[status.Status]Role{
	status.FirstPartyApproved:  RoleFirstParty,
	status.FirstPartyDeclined:  RoleFirstParty,
	status.SecondPartyApproved: RoleSecondParty,
	status.SecondPartyDeclined: RoleSecondParty,
}

// authorize decides whether actor may move s to target. It does not check
// the transition table.
//
// Rules:
//   - party responses come only from that party
//   - CONTACT_DETAILS_SHARED → AWAITING_FIRST_DATE_FEEDBACK may come from
//     either party or the matchmaker
//   - everything else belongs to the matchmaker or the system
//
// Human actors must be the party or matchmaker recorded on s.
func authorize(actor Actor, s *db.Suggestion, target status.Status) error {
	if err := checkIdentity(actor, s); err != nil {
		return err
	}

	if role, ok := responderFor[target]; ok {
		if actor.Role != role {
			return svcErr.Newf(svcErr.KindForbidden, "%s cannot record a %s response", actor.Role, role)
		}
		return nil
	}

	if s.Status == status.ContactDetailsShared && target == status.AwaitingFirstDateFeedback {
		return nil
	}

	switch actor.Role {
	case RoleMatchmaker, RoleSystem:
		return nil
	}
	return svcErr.Newf(svcErr.KindForbidden, "%s cannot move a suggestion to %s", actor.Role, target)
}

func checkIdentity(actor Actor, s *db.Suggestion) error {
	var want uint64
	switch actor.Role {
	case RoleSystem:
		return nil
	case RoleMatchmaker:
		want = s.MatchmakerID
	case RoleFirstParty:
		want = s.FirstPartyID
	case RoleSecondParty:
		want = s.SecondPartyID
	default:
		return svcErr.Newf(svcErr.KindValidation, "unknown actor role %q", actor.Role)
	}
	if actor.ID != want {
		return svcErr.Newf(svcErr.KindForbidden, "actor %d is not the %s of suggestion %s", actor.ID, actor.Role, s.ID)
	}
	return nil
}

// systemExpiry is the one move outside the transition table: the system
// may expire a suggestion that is still waiting on a party.
func systemExpiry(actor Actor, current, target status.Status) bool {
	return actor.Role == RoleSystem && target == status.Expired && current.IsAwaitingResponse()
}

// availableTargets lists the statuses actor may move s to right now.
func availableTargets(actor Actor, s *db.Suggestion) []status.Status {
	var out []status.Status
	for _, target := range status.AllowedTargets(s.Status) {
		if authorize(actor, s, target) == nil {
			out = append(out, target)
		}
	}
	return out
}
