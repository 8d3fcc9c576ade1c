package status_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/status"
)

// expected mirrors the adjacency table a reviewer signs off on. Every pair
// outside it must be denied.
var expected = map[status.Status][]status.Status{
	status.Draft:                      {status.PendingFirstParty},
	status.PendingFirstParty:          {status.FirstPartyApproved, status.FirstPartyDeclined, status.Cancelled},
	status.FirstPartyApproved:         {status.PendingSecondParty, status.Cancelled},
	status.FirstPartyDeclined:         {status.Closed},
	status.PendingSecondParty:         {status.SecondPartyApproved, status.SecondPartyDeclined, status.Cancelled},
	status.SecondPartyApproved:        {status.ContactDetailsShared, status.Cancelled},
	status.SecondPartyDeclined:        {status.Closed},
	status.AwaitingMatchmakerApproval: {status.ContactDetailsShared, status.Cancelled},
	status.ContactDetailsShared:       {status.AwaitingFirstDateFeedback, status.Cancelled},
	status.AwaitingFirstDateFeedback:  {status.ThinkingAfterDate, status.EndedAfterFirstDate, status.Cancelled},
	status.ThinkingAfterDate:          {status.ProceedingToSecondDate, status.EndedAfterFirstDate, status.Cancelled},
	status.ProceedingToSecondDate:     {status.Dating, status.Cancelled},
	status.EndedAfterFirstDate:        {status.Closed},
	status.MeetingPending:             {status.MeetingScheduled, status.Cancelled},
	status.MeetingScheduled:           {status.Dating, status.Cancelled},
	status.MatchApproved:              {status.Dating, status.Cancelled},
	status.MatchDeclined:              {status.Closed},
	status.Dating:                     {status.Engaged, status.Closed, status.Cancelled},
	status.Engaged:                    {status.Married, status.Cancelled},
	status.Married:                    {},
	status.Expired:                    {},
	status.Closed:                     {},
	status.Cancelled:                  {},
}

func TestAllStatusesHaveARow(t *testing.T) {
	require.Len(t, status.All(), 23)
	for _, s := range status.All() {
		_, ok := expected[s]
		assert.True(t, ok, "status %s missing from expected table", s)
	}
	assert.Len(t, expected, len(status.All()))
}

func TestIsAllowedExhaustive(t *testing.T) {
	for _, from := range status.All() {
		allowed := map[status.Status]bool{}
		for _, to := range expected[from] {
			allowed[to] = true
		}
		for _, to := range status.All() {
			assert.Equal(t, allowed[to], status.IsAllowed(from, to), "%s -> %s", from, to)
		}
		assert.False(t, status.IsAllowed(from, from), "self loop on %s", from)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminal := []status.Status{status.Married, status.Expired, status.Closed, status.Cancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
		assert.Empty(t, status.AllowedTargets(s))
		for _, to := range status.All() {
			assert.False(t, status.IsAllowed(s, to), "%s -> %s", s, to)
		}
	}

	for _, s := range status.All() {
		if len(expected[s]) > 0 {
			assert.False(t, s.IsTerminal(), s)
		}
	}
}

func TestUnknownStatusIsDenied(t *testing.T) {
	bogus := status.Status("ON_HOLD")
	assert.False(t, bogus.Valid())
	assert.False(t, status.IsAllowed(bogus, status.Cancelled))
	assert.False(t, status.IsAllowed(status.PendingFirstParty, bogus))
	assert.False(t, bogus.IsActive())
	assert.Empty(t, status.AllowedTargets(bogus))
}

func TestIsActive(t *testing.T) {
	for _, s := range status.All() {
		switch s {
		case status.Closed, status.Cancelled, status.Expired, status.MatchDeclined:
			assert.False(t, s.IsActive(), s)
		default:
			assert.True(t, s.IsActive(), s)
		}
	}
}

func TestAwaitingResponse(t *testing.T) {
	assert.True(t, status.PendingFirstParty.IsAwaitingResponse())
	assert.True(t, status.PendingSecondParty.IsAwaitingResponse())
	assert.False(t, status.FirstPartyApproved.IsAwaitingResponse())
	assert.ElementsMatch(t, []status.Status{status.PendingFirstParty, status.PendingSecondParty}, status.AwaitingResponse())
}

func TestUnreachableStatusesAreKept(t *testing.T) {
	for _, s := range []status.Status{
		status.AwaitingMatchmakerApproval,
		status.MeetingPending,
		status.MeetingScheduled,
		status.MatchApproved,
		status.MatchDeclined,
	} {
		assert.True(t, s.Valid(), s)
		assert.True(t, s.Unreachable(), s)
	}
	assert.False(t, status.PendingFirstParty.Unreachable())
}

func TestCategory(t *testing.T) {
	assert.Equal(t, status.CategoryPending, status.PendingFirstParty.Category())
	assert.Equal(t, status.CategoryPending, status.PendingSecondParty.Category())
	assert.Equal(t, status.CategoryActive, status.FirstPartyApproved.Category())
	assert.Equal(t, status.CategoryActive, status.Dating.Category())
	assert.Equal(t, status.CategoryHistory, status.FirstPartyDeclined.Category())
	assert.Equal(t, status.CategoryHistory, status.Married.Category())
	assert.Equal(t, status.CategoryHistory, status.Expired.Category())
}

func TestParse(t *testing.T) {
	s, err := status.Parse(" first_party_declined ")
	require.NoError(t, err)
	assert.Equal(t, status.FirstPartyDeclined, s)

	_, err = status.Parse("nope")
	assert.Error(t, err)
}
