package lifecycle

import (
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/status"
)

// Intent types put on the notification port.
const (
	IntentSent                = "suggestion.sent"
	IntentFirstPartyApproved  = "suggestion.first_party_approved"
	IntentSecondPartyApproved = "suggestion.second_party_approved"
	IntentContactShared       = "suggestion.contact_shared"
	IntentExpired             = "suggestion.expired"
	IntentStatusChanged       = "suggestion.status_changed"
)

// AutoAdvanceTarget returns the follow-up status an intent asks for, if any.
func AutoAdvanceTarget(intentType string) (from, to status.Status, ok bool) {
	switch intentType {
	case IntentFirstPartyApproved:
		return status.FirstPartyApproved, status.PendingSecondParty, true
	case IntentSecondPartyApproved:
		return status.SecondPartyApproved, status.ContactDetailsShared, true
	}
	return "", "", false
}

// intentFor picks the single intent emitted after s entered target.
func intentFor(s *db.Suggestion, target status.Status) (string, []uint64) {
	both := []uint64{s.FirstPartyID, s.SecondPartyID}

	switch target {
	case status.FirstPartyApproved:
		return IntentFirstPartyApproved, []uint64{s.MatchmakerID}
	case status.SecondPartyApproved:
		return IntentSecondPartyApproved, []uint64{s.MatchmakerID}
	case status.ContactDetailsShared:
		return IntentContactShared, both
	case status.Expired:
		return IntentExpired, []uint64{s.MatchmakerID}
	}
	return IntentStatusChanged, statusChangeRecipients(s, target)
}

func statusChangeRecipients(s *db.Suggestion, target status.Status) []uint64 {
	switch target {
	case status.PendingFirstParty:
		return []uint64{s.FirstPartyID}
	case status.PendingSecondParty:
		return []uint64{s.SecondPartyID}
	case status.AwaitingFirstDateFeedback:
		return []uint64{s.FirstPartyID, s.SecondPartyID}
	case status.Engaged, status.Married:
		return []uint64{s.FirstPartyID, s.SecondPartyID, s.MatchmakerID}
	default:
		return []uint64{s.MatchmakerID}
	}
}

// availabilityFor maps statuses that change the parties' availability.
var availabilityFor = map[status.Status]db.Availability{
	status.Dating:  db.AvailabilityDating,
	status.Engaged: db.AvailabilityEngaged,
	status.Married: db.AvailabilityMarried,
}
