// Package testutil provides shared helpers for store, engine and service tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/logger"
)

// DB opens a private in-memory sqlite database, migrated and seeded with
// db.SeedMinimalTestData. It is closed when the test ends.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	gdb, err := db.OpenSQLite(dsn)
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.SeedMinimalTestData(gdb); err != nil {
		tb.Fatalf("failed to seed: %v", err)
	}
	return gdb
}

// Redis starts a miniredis server and returns a cache bound to it.
func Redis(tb testing.TB) (*cache.RedisCache, *miniredis.Miniredis) {
	tb.Helper()
	mr := miniredis.RunT(tb)
	rc := cache.NewRedisCacheFromAddr(mr.Addr())
	tb.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Logger returns a logger that drops everything.
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()
	return logger.Discard()
}

// SeedUser inserts a candidate with the given availability and returns it.
func SeedUser(tb testing.TB, ctx context.Context, gdb *gorm.DB, availability db.Availability) *db.User {
	tb.Helper()
	id := uuid.NewString()[:8]
	u := &db.User{
		Username:           "u_" + id,
		Email:              id + "@test.com",
		PasswordHash:       "x",
		Role:               db.RoleCandidate,
		AvailabilityStatus: availability,
	}
	if err := gdb.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// FixedClock is a settable clock for deterministic timestamps.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock frozen at a fixed UTC instant.
func NewClock() *FixedClock {
	return &FixedClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
