// Package sweeper expires suggestions whose response deadline has passed.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/metrics"
	"github.com/oggyb/matchmaker/internal/status"
)

var ErrAlreadyRunning = errors.New("sweeper already running")

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 100
	DefaultLockTTL   = 2 * time.Minute

	lockKey     = "sweeper:expire"
	expiredNote = "Response deadline passed; expired by system"
)

// Candidates finds suggestions still waiting on a party past their deadline.
type Candidates interface {
	FindAwaitingResponseBefore(ctx context.Context, ts time.Time, limit int) ([]db.Suggestion, error)
}

// Transitioner applies a status change. *lifecycle.Engine implements it.
type Transitioner interface {
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (*db.Suggestion, error)
}

// Locker hands out a lock so only one replica sweeps at a time.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// Result describes one sweep.
type Result struct {
	Scanned int
	Expired int
	// Skipped counts suggestions that moved on before the sweeper got to them.
	Skipped int
	Failed  int
	Locked  bool
}

type Sweeper struct {
	candidates Candidates
	engine     Transitioner
	locker     Locker // optional
	cfg        Config
	now        func() time.Time
	log        *slog.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

type Option func(*Sweeper)

// WithLocker enables the distributed lock.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

func New(candidates Candidates, engine Transitioner, cfg Config, opts ...Option) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	s := &Sweeper{
		candidates: candidates,
		engine:     engine,
		cfg:        cfg,
		now:        time.Now,
		log:        logger.Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep immediately and then on every interval until Stop is
// called or ctx ends. A stopped sweeper can be started again.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	s.running = true

	s.log.Info("starting deadline sweeper", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)
	go s.loop(ctx, s.stopCh, s.stoppedC)
	return nil
}

// Stop waits for the current sweep to finish, or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stopped := s.stoppedC
	s.mu.Unlock()

	select {
	case <-stopped:
		s.log.Info("deadline sweeper stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("deadline sweeper shutdown timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, stopped chan struct{}) {
	defer close(stopped)
	defer s.exited(stopped)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// exited clears running when the loop that owns stopped ends on its own.
func (s *Sweeper) exited(stopped chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stoppedC == stopped {
		s.running = false
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", "expired", res.Expired, "failed", res.Failed, "err", err)
		return
	}
	if res.Scanned > 0 {
		s.log.Info("sweep finished",
			"scanned", res.Scanned,
			"expired", res.Expired,
			"skipped", res.Skipped,
		)
	}
}

// Sweep runs one pass. Suggestions expired before an infrastructure error
// stay expired; the rest are picked up on the next pass.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	if s.locker != nil {
		lock, err := s.locker.AcquireLock(ctx, lockKey, s.cfg.LockTTL)
		if errors.Is(err, cache.ErrLockNotAcquired) {
			res.Locked = true
			metrics.SweeperRunsTotal.WithLabelValues(metrics.ResultLocked).Inc()
			s.log.Debug("another replica is sweeping")
			return res, nil
		}
		if err != nil {
			metrics.SweeperRunsTotal.WithLabelValues(metrics.ResultError).Inc()
			return res, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release sweeper lock", "err", err)
			}
		}()
	}

	due, err := s.candidates.FindAwaitingResponseBefore(ctx, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		metrics.SweeperRunsTotal.WithLabelValues(metrics.ResultError).Inc()
		return res, err
	}
	res.Scanned = len(due)

	for _, sg := range due {
		_, err := s.engine.Transition(ctx, lifecycle.TransitionRequest{
			SuggestionID:    sg.ID,
			RequestedStatus: status.Expired,
			Notes:           expiredNote,
			Actor:           lifecycle.SystemActor(),
		})
		switch {
		case err == nil:
			res.Expired++
			metrics.SweeperExpiredTotal.Inc()
		case errors.Is(err, svcErr.ErrInvalidTransition),
			errors.Is(err, svcErr.ErrConcurrentModification),
			errors.Is(err, svcErr.ErrSuggestionNotFound):
			res.Skipped++
			s.log.Debug("suggestion moved on before expiry", "suggestion_id", sg.ID, "err", err)
		default:
			res.Failed++
			metrics.SweeperRunsTotal.WithLabelValues(metrics.ResultError).Inc()
			return res, err
		}
	}

	metrics.SweeperRunsTotal.WithLabelValues(metrics.ResultOK).Inc()
	return res, nil
}
