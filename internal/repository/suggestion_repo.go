package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/status"
	"github.com/oggyb/matchmaker/internal/utils/pagination"
)

// DefaultHistoryLimit caps history listings when the caller gives no limit.
const DefaultHistoryLimit = 50

// Patch is a set of column → value assignments applied to a suggestion.
type Patch map[string]any

// ActiveFilter narrows ListActive. Zero ids mean "any".
type ActiveFilter struct {
	MatchmakerID uint64
	PartyID      uint64
	PageToken    string
	Limit        int
}

// HistoryRange narrows ListHistory. Nil bounds are open.
type HistoryRange struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// SuggestionRepository provides data access for suggestions and their
// status history. Every write that changes status also appends a history
// row in the same transaction.
type SuggestionRepository struct {
	db *gorm.DB
}

// NewSuggestionRepository creates a new repository bound to the given DB connection.
func NewSuggestionRepository(database *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: database}
}

// CreateSuggestionWithHistory inserts a suggestion and its first history row.
//
// Behavior:
//   - Both rows are written in one transaction; a failure leaves neither.
//   - A unique violation on active_pair_key (a concurrent create for the
//     same pair won) is reported as DuplicateActiveSuggestion.
func (r *SuggestionRepository) CreateSuggestionWithHistory(
	ctx context.Context,
	s *db.Suggestion,
	h *db.SuggestionStatusHistory,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			if isDuplicateKey(err) {
				return svcErr.Newf(svcErr.KindDuplicateActive,
					"an active suggestion already exists between %d and %d", s.FirstPartyID, s.SecondPartyID)
			}
			return fmt.Errorf("insert suggestion: %w", err)
		}

		h.SuggestionID = s.ID
		if err := tx.Create(h).Error; err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

// UpdateSuggestionWithHistory applies patch to suggestion id only if its
// status is still expected, and appends h.
//
// Behavior:
//   - UPDATE ... WHERE id = ? AND status = ? inside a transaction.
//   - No row matched and the suggestion exists → ConcurrentModification.
//   - No row matched and the suggestion is gone → SuggestionNotFound.
//   - History insert failure rolls back the update.
func (r *SuggestionRepository) UpdateSuggestionWithHistory(
	ctx context.Context,
	id string,
	expected status.Status,
	patch Patch,
	h *db.SuggestionStatusHistory,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Suggestion{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(map[string]any(patch))
		if res.Error != nil {
			if isDuplicateKey(res.Error) {
				return svcErr.New(svcErr.KindDuplicateActive, "another active suggestion exists for this pair")
			}
			return fmt.Errorf("update suggestion: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			exists, err := suggestionExists(tx, id)
			if err != nil {
				return err
			}
			if !exists {
				return svcErr.Newf(svcErr.KindSuggestionNotFound, "suggestion %s", id)
			}
			return svcErr.Newf(svcErr.KindConcurrentModification,
				"suggestion %s is no longer %s", id, expected)
		}

		h.SuggestionID = id
		if err := tx.Create(h).Error; err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

// UpdateDetails applies a patch that never touches status; no history row.
func (r *SuggestionRepository) UpdateDetails(ctx context.Context, id string, patch Patch) error {
	res := r.db.WithContext(ctx).
		Model(&db.Suggestion{}).
		Where("id = ?", id).
		Updates(map[string]any(patch))
	if res.Error != nil {
		return fmt.Errorf("update suggestion details: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// mysql reports zero rows when nothing changed
		exists, err := suggestionExists(r.db.WithContext(ctx), id)
		if err != nil {
			return err
		}
		if !exists {
			return svcErr.Newf(svcErr.KindSuggestionNotFound, "suggestion %s", id)
		}
	}
	return nil
}

// GetSuggestion loads a suggestion by id.
func (r *SuggestionRepository) GetSuggestion(ctx context.Context, id string) (*db.Suggestion, error) {
	var s db.Suggestion
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.Newf(svcErr.KindSuggestionNotFound, "suggestion %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return &s, nil
}

// FindActiveBetween returns the active suggestion for the unordered pair
// (a, b), or nil when there is none.
func (r *SuggestionRepository) FindActiveBetween(ctx context.Context, a, b uint64) (*db.Suggestion, error) {
	var s db.Suggestion
	err := r.db.WithContext(ctx).
		Where("active_pair_key = ?", db.PairKey(a, b)).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active suggestion: %w", err)
	}
	return &s, nil
}

// FindAwaitingResponseBefore returns up to limit suggestions still waiting
// on a party whose response deadline is strictly before ts, oldest deadline first.
func (r *SuggestionRepository) FindAwaitingResponseBefore(
	ctx context.Context,
	ts time.Time,
	limit int,
) ([]db.Suggestion, error) {
	var out []db.Suggestion
	q := r.db.WithContext(ctx).
		Where("status IN ?", status.AwaitingResponse()).
		Where("response_deadline IS NOT NULL AND response_deadline < ?", ts.UTC()).
		Order("response_deadline ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find overdue suggestions: %w", err)
	}
	return out, nil
}

// ListActive returns active suggestions, newest status change first.
//
// Behavior:
//   - Filters by matchmaker and/or party when set.
//   - Ordered by last_status_change DESC, id DESC.
//   - Supports cursor-based pagination via PageToken.
func (r *SuggestionRepository) ListActive(
	ctx context.Context,
	f ActiveFilter,
) ([]db.Suggestion, *string, error) {
	var out []db.Suggestion

	cursor, err := pagination.Decode(f.PageToken)
	if err != nil {
		return nil, nil, svcErr.Validation(err.Error())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := r.db.WithContext(ctx).
		Model(&db.Suggestion{}).
		Where("status NOT IN ?", status.Inactive()).
		Order("last_status_change DESC, id DESC").
		Limit(limit + 1)

	if f.MatchmakerID > 0 {
		query = query.Where("matchmaker_id = ?", f.MatchmakerID)
	}
	if f.PartyID > 0 {
		query = query.Where("(first_party_id = ? OR second_party_id = ?)", f.PartyID, f.PartyID)
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.ChangedUnix).UTC()
		query = query.Where(
			"(last_status_change < ? OR (last_status_change = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, nil, fmt.Errorf("list active suggestions: %w", err)
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(out) > limit {
		last := out[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			ChangedUnix: last.LastStatusChange.UnixMilli(),
		})
		nextToken = &token
		out = out[:limit]
	}

	return out, nextToken, nil
}

// ListHistory returns the history of a suggestion in append order.
func (r *SuggestionRepository) ListHistory(
	ctx context.Context,
	id string,
	rng HistoryRange,
) ([]db.SuggestionStatusHistory, error) {
	limit := rng.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := r.db.WithContext(ctx).
		Where("suggestion_id = ?", id).
		Order("id ASC").
		Limit(limit)
	if rng.From != nil {
		query = query.Where("created_at >= ?", rng.From.UTC())
	}
	if rng.To != nil {
		query = query.Where("created_at <= ?", rng.To.UTC())
	}

	var out []db.SuggestionStatusHistory
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

func suggestionExists(tx *gorm.DB, id string) (bool, error) {
	var count int64
	if err := tx.Model(&db.Suggestion{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check suggestion: %w", err)
	}
	return count > 0, nil
}

// isDuplicateKey recognizes unique violations from either driver. gorm
// translates them when TranslateError is on; the message check covers
// handles opened without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
