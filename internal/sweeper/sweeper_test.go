package sweeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/metrics"
	"github.com/oggyb/matchmaker/internal/notify"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/status"
	"github.com/oggyb/matchmaker/internal/sweeper"
	"github.com/oggyb/matchmaker/internal/testutil"
)

type env struct {
	store  *repository.SuggestionRepository
	engine *lifecycle.Engine
	clock  *testutil.FixedClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testutil.DB(t)
	store := repository.NewSuggestionRepository(gdb)
	clock := testutil.NewClock()
	engine := lifecycle.NewEngine(store, repository.NewPartyRepository(gdb),
		notify.NewLogNotifier(testutil.Logger(t)),
		lifecycle.WithClock(clock),
		lifecycle.WithLogger(testutil.Logger(t)),
	)
	return &env{store: store, engine: engine, clock: clock}
}

func (e *env) create(t *testing.T, a, b uint64, deadlineIn time.Duration) *db.Suggestion {
	t.Helper()
	s, err := e.engine.Create(context.Background(), lifecycle.CreateRequest{
		MatchmakerID:     db.SeedMatchmakerID,
		FirstPartyID:     a,
		SecondPartyID:    b,
		DecisionDeadline: e.clock.Now().Add(deadlineIn),
	})
	require.NoError(t, err)
	return s
}

func (e *env) sweeper(t *testing.T, opts ...sweeper.Option) *sweeper.Sweeper {
	opts = append([]sweeper.Option{
		sweeper.WithNow(e.clock.Now),
		sweeper.WithLogger(testutil.Logger(t)),
	}, opts...)
	return sweeper.New(e.store, e.engine, sweeper.Config{Interval: time.Hour}, opts...)
}

func TestSweepExpiresOnlyOverdue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	overdue := e.create(t, 1, 2, 24*time.Hour)
	future := e.create(t, 1, 3, 96*time.Hour)
	e.clock.Advance(48 * time.Hour)

	expiredBefore := promtest.ToFloat64(metrics.SweeperExpiredTotal)
	res, err := e.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Result{Scanned: 1, Expired: 1}, res)
	assert.Equal(t, expiredBefore+1, promtest.ToFloat64(metrics.SweeperExpiredTotal))

	got, err := e.engine.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Expired, got.Status)
	assert.Nil(t, got.ActivePairKey)
	require.NotNil(t, got.ClosedAt)

	h, err := e.engine.History(ctx, overdue.ID, lifecycle.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, status.Expired, h[1].Status)
	assert.Equal(t, "Response deadline passed; expired by system", h[1].Notes)
	assert.Equal(t, string(lifecycle.RoleSystem), h[1].Actor)

	untouched, err := e.engine.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, status.PendingFirstParty, untouched.Status)

	// second pass finds nothing
	res, err = e.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestSweepExpiresSecondPartyAfterWindow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	mm := lifecycle.Actor{Role: lifecycle.RoleMatchmaker, ID: db.SeedMatchmakerID}

	s := e.create(t, 1, 2, 24*time.Hour)
	for _, step := range []struct {
		to    status.Status
		actor lifecycle.Actor
	}{
		{status.FirstPartyApproved, lifecycle.Actor{Role: lifecycle.RoleFirstParty, ID: 1}},
		{status.PendingSecondParty, mm},
	} {
		_, err := e.engine.Transition(ctx, lifecycle.TransitionRequest{
			SuggestionID: s.ID, RequestedStatus: step.to, Actor: step.actor,
		})
		require.NoError(t, err)
	}

	// the first deadline has passed but the second party window has not
	e.clock.Advance(48 * time.Hour)
	res, err := e.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)

	e.clock.Advance(25 * time.Hour)
	res, err = e.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	rc, _ := testutil.Redis(t)

	s := e.create(t, 1, 2, time.Hour)
	e.clock.Advance(2 * time.Hour)

	held, err := rc.AcquireLock(ctx, "sweeper:expire", time.Minute)
	require.NoError(t, err)

	sw := e.sweeper(t, sweeper.WithLocker(rc))
	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, res.Locked)
	assert.Zero(t, res.Scanned)

	got, err := e.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, status.PendingFirstParty, got.Status)

	require.NoError(t, held.Release(ctx))
	res, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	// the sweeper released its own lock
	again, err := rc.AcquireLock(ctx, "sweeper:expire", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

type fixedCandidates []db.Suggestion

func (c fixedCandidates) FindAwaitingResponseBefore(context.Context, time.Time, int) ([]db.Suggestion, error) {
	return c, nil
}

type scriptedEngine struct {
	errs  map[string]error
	calls []string
}

func (e *scriptedEngine) Transition(_ context.Context, req lifecycle.TransitionRequest) (*db.Suggestion, error) {
	e.calls = append(e.calls, req.SuggestionID)
	if err := e.errs[req.SuggestionID]; err != nil {
		return nil, err
	}
	return &db.Suggestion{ID: req.SuggestionID, Status: req.RequestedStatus}, nil
}

func TestSweepCountsRacesAndStopsOnInfrastructureError(t *testing.T) {
	candidates := fixedCandidates{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	eng := &scriptedEngine{errs: map[string]error{
		"b": svcErr.New(svcErr.KindInvalidTransition, "already approved"),
		"c": svcErr.New(svcErr.KindConcurrentModification, "lost race"),
		"d": svcErr.Infrastructure("update suggestion", errors.New("connection reset")),
	}}

	sw := sweeper.New(candidates, eng, sweeper.Config{}, sweeper.WithLogger(testutil.Logger(t)))
	res, err := sw.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, svcErr.IsRetryable(err))
	assert.Equal(t, sweeper.Result{Scanned: 5, Expired: 1, Skipped: 2, Failed: 1}, res)
	assert.Equal(t, []string{"a", "b", "c", "d"}, eng.calls)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	s := e.create(t, 1, 2, time.Hour)
	e.clock.Advance(2 * time.Hour)

	sw := e.sweeper(t)
	require.NoError(t, sw.Start(ctx))
	assert.True(t, sw.IsRunning())
	assert.ErrorIs(t, sw.Start(ctx), sweeper.ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		got, err := e.engine.Get(ctx, s.ID)
		return err == nil && got.Status == status.Expired
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, sw.Stop(stopCtx))
	assert.False(t, sw.IsRunning())
	assert.NoError(t, sw.Stop(stopCtx))
}

func TestRestartAfterStop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sw := e.sweeper(t)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	require.NoError(t, sw.Start(ctx))
	require.NoError(t, sw.Stop(stopCtx))
	assert.False(t, sw.IsRunning())

	s := e.create(t, 1, 2, time.Hour)
	e.clock.Advance(2 * time.Hour)

	require.NoError(t, sw.Start(ctx))
	assert.True(t, sw.IsRunning())
	require.Eventually(t, func() bool {
		got, err := e.engine.Get(ctx, s.ID)
		return err == nil && got.Status == status.Expired
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sw.Stop(stopCtx))
	assert.False(t, sw.IsRunning())
}

func TestNotRunningAfterContextEnds(t *testing.T) {
	e := newEnv(t)
	sw := e.sweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sw.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !sw.IsRunning() }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, sw.Stop(context.Background()))
	require.NoError(t, sw.Start(context.Background()))
	require.NoError(t, sw.Stop(context.Background()))
}
