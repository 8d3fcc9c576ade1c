package lifecycle

import (
	"context"
	"time"

	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/status"
)

// Store persists suggestions and their history. Status-changing writes
// append exactly one history row in the same transaction.
type Store interface {
	CreateSuggestionWithHistory(ctx context.Context, s *db.Suggestion, h *db.SuggestionStatusHistory) error
	// UpdateSuggestionWithHistory applies patch only while the stored status
	// still equals expected; otherwise it fails with ConcurrentModification.
	UpdateSuggestionWithHistory(ctx context.Context, id string, expected status.Status, patch repository.Patch, h *db.SuggestionStatusHistory) error
	UpdateDetails(ctx context.Context, id string, patch repository.Patch) error
	GetSuggestion(ctx context.Context, id string) (*db.Suggestion, error)
	// FindActiveBetween returns nil when the pair has no active suggestion.
	FindActiveBetween(ctx context.Context, a, b uint64) (*db.Suggestion, error)
	FindAwaitingResponseBefore(ctx context.Context, ts time.Time, limit int) ([]db.Suggestion, error)
	ListActive(ctx context.Context, f repository.ActiveFilter) ([]db.Suggestion, *string, error)
	ListHistory(ctx context.Context, id string, rng repository.HistoryRange) ([]db.SuggestionStatusHistory, error)
}

// PartyLookup resolves a party id. Unknown ids yield PartyNotFound.
type PartyLookup interface {
	ResolveParty(ctx context.Context, id uint64) (repository.Party, error)
}

// AvailabilityUpdater is optionally implemented by a PartyLookup to receive
// availability write-back when a pair starts dating, gets engaged or marries.
type AvailabilityUpdater interface {
	SetAvailability(ctx context.Context, availability db.Availability, ids ...uint64) error
}

// Notifier records an intent to notify recipients. Delivery happens elsewhere.
type Notifier interface {
	Enqueue(ctx context.Context, intentType string, suggestionID string, recipients []uint64) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
