package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

// Party is the lifecycle's view of a user.
type Party struct {
	ID           uint64
	Exists       bool
	Role         string
	Availability db.Availability
}

// PartyRepository resolves parties from the users table.
type PartyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(database *gorm.DB) *PartyRepository {
	return &PartyRepository{db: database}
}

// ResolveParty loads a user by id. Missing or deactivated users yield
// PartyNotFound.
func (r *PartyRepository) ResolveParty(ctx context.Context, id uint64) (Party, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Select("id", "role", "availability_status", "active").
		Where("id = ?", id).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !u.Active) {
		return Party{ID: id}, svcErr.Newf(svcErr.KindPartyNotFound, "party %d", id)
	}
	if err != nil {
		return Party{ID: id}, fmt.Errorf("resolve party: %w", err)
	}
	return Party{
		ID:           u.ID,
		Exists:       true,
		Role:         u.Role,
		Availability: u.AvailabilityStatus,
	}, nil
}

// SetAvailability updates the availability of the given parties.
func (r *PartyRepository) SetAvailability(ctx context.Context, availability db.Availability, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id IN ?", ids).
		Update("availability_status", availability).Error
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return nil
}
