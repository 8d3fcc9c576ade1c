package db

import (
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/logger"
)

// Fixed ids used by SeedMinimalTestData.
const (
	SeedMatchmakerID  uint64 = 100
	SeedMatchmaker2ID uint64 = 101
)

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears existing data in `suggestion_status_history`, `suggestions` and `users`.
//  2. Creates 20 candidates with hashed passwords; roughly one in six is not AVAILABLE.
//  3. Creates 2 matchmakers.
//
// Suggestions are not seeded here; they must go through the lifecycle engine.
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := truncateAll(db); err != nil {
		return err
	}
	logger.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	unavailable := []Availability{AvailabilityDating, AvailabilityPaused, AvailabilityUnavailable}
	for i := 1; i <= 20; i++ {
		availability := AvailabilityAvailable
		if r.Intn(6) == 0 {
			availability = unavailable[r.Intn(len(unavailable))]
		}
		lastLogin := time.Now().UTC().Add(-time.Duration(r.Intn(500)) * time.Hour)

		user := User{
			Username:           fmt.Sprintf("user%d", i),
			Email:              fmt.Sprintf("user%d@example.com", i),
			PasswordHash:       string(hash),
			Active:             true,
			Role:               RoleCandidate,
			AvailabilityStatus: availability,
			LastLoginAt:        &lastLogin,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
	}

	for i := 1; i <= 2; i++ {
		mm := User{
			Username:           fmt.Sprintf("matchmaker%d", i),
			Email:              fmt.Sprintf("matchmaker%d@example.com", i),
			PasswordHash:       string(hash),
			Active:             true,
			Role:               RoleMatchmaker,
			AvailabilityStatus: AvailabilityUnavailable,
		}
		if err := db.Create(&mm).Error; err != nil {
			return fmt.Errorf("failed to seed matchmaker: %w", err)
		}
	}
	logger.Info("seeded users", "candidates", 20, "matchmakers", 2)

	return nil
}

// SeedMinimalTestData inserts a small deterministic dataset:
//   - candidates 1, 2, 3 AVAILABLE, 4 DATING
//   - matchmakers 100 and 101
func SeedMinimalTestData(db *gorm.DB) error {
	if err := truncateAll(db); err != nil {
		return err
	}

	users := []User{
		{ID: 1, Username: "user1", Email: "u1@test.com", PasswordHash: "x", Role: RoleCandidate, AvailabilityStatus: AvailabilityAvailable},
		{ID: 2, Username: "user2", Email: "u2@test.com", PasswordHash: "x", Role: RoleCandidate, AvailabilityStatus: AvailabilityAvailable},
		{ID: 3, Username: "user3", Email: "u3@test.com", PasswordHash: "x", Role: RoleCandidate, AvailabilityStatus: AvailabilityAvailable},
		{ID: 4, Username: "user4", Email: "u4@test.com", PasswordHash: "x", Role: RoleCandidate, AvailabilityStatus: AvailabilityDating},
		{ID: SeedMatchmakerID, Username: "mm1", Email: "mm1@test.com", PasswordHash: "x", Role: RoleMatchmaker, AvailabilityStatus: AvailabilityUnavailable},
		{ID: SeedMatchmaker2ID, Username: "mm2", Email: "mm2@test.com", PasswordHash: "x", Role: RoleMatchmaker, AvailabilityStatus: AvailabilityUnavailable},
	}
	return db.Create(&users).Error
}

func truncateAll(db *gorm.DB) error {
	for _, table := range []string{"suggestion_status_history", "suggestions", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE suggestion_status_history AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('suggestion_status_history', 'users')")
	}
	return nil
}
