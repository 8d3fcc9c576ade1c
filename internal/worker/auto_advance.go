// Package worker consumes notification intents and performs the automatic
// follow-up transitions some of them ask for.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/metrics"
	"github.com/oggyb/matchmaker/internal/notify"
)

var ErrAlreadyRunning = errors.New("auto-advance worker already running")

const (
	DefaultBatchSize    = 20
	DefaultBlockTimeout = 5 * time.Second
	errorBackoff        = time.Second
)

// Stream is the consumer-group side of the intent stream.
type Stream interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]cache.StreamMessage, error)
	ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]cache.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// Engine is the part of *lifecycle.Engine the worker drives.
type Engine interface {
	Get(ctx context.Context, id string) (*db.Suggestion, error)
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (*db.Suggestion, error)
}

type Config struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int64
	BlockTimeout time.Duration
}

// Stats counts what one poll did with the messages it read.
type Stats struct {
	Advanced int
	Ignored  int
	Skipped  int
	// Pending messages were left unacked for a later retry.
	Pending int
}

type AutoAdvancer struct {
	stream Stream
	engine Engine
	cfg    Config
	log    *slog.Logger

	cancel   context.CancelFunc
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

func New(stream Stream, engine Engine, cfg Config, log *slog.Logger) *AutoAdvancer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if log == nil {
		log = logger.Named("auto-advance")
	}
	return &AutoAdvancer{stream: stream, engine: engine, cfg: cfg, log: log}
}

// Start creates the consumer group and begins consuming in the background.
func (w *AutoAdvancer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	if err := w.stream.EnsureGroup(ctx, w.cfg.Stream, w.cfg.Group); err != nil {
		return fmt.Errorf("auto-advance: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.stoppedC = make(chan struct{})
	w.running = true

	w.log.Info("starting auto-advance worker",
		"stream", w.cfg.Stream,
		"group", w.cfg.Group,
		"consumer", w.cfg.Consumer,
	)
	go w.loop(loopCtx, w.stoppedC)
	return nil
}

// Stop cancels the consume loop and waits for it, or for ctx to end.
func (w *AutoAdvancer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	stopped := w.stoppedC
	w.mu.Unlock()

	select {
	case <-stopped:
		w.log.Info("auto-advance worker stopped")
		return nil
	case <-ctx.Done():
		w.log.Warn("auto-advance worker shutdown timed out")
		return ctx.Err()
	}
}

// exited clears running when the loop that owns stopped ends because its
// parent context did.
func (w *AutoAdvancer) exited(stopped chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stoppedC == stopped {
		w.running = false
	}
}

func (w *AutoAdvancer) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *AutoAdvancer) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	defer w.exited(stopped)

	for ctx.Err() == nil {
		stats, err := w.Poll(ctx, w.cfg.BlockTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.Warn("failed to consume intents", "err", err)
		}
		if err != nil || stats.Pending > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
		}
	}
}

// Poll handles this consumer's unacked messages first, then waits up to
// block for new ones. A negative block does not wait.
func (w *AutoAdvancer) Poll(ctx context.Context, block time.Duration) (Stats, error) {
	var stats Stats

	pending, err := w.stream.ReadPending(ctx, w.cfg.Stream, w.cfg.Group, w.cfg.Consumer, w.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	w.handleAll(ctx, pending, &stats)

	// Retrying pending messages takes priority over new ones.
	if len(pending) > 0 {
		block = -1
	}
	fresh, err := w.stream.ReadGroup(ctx, w.cfg.Stream, w.cfg.Group, w.cfg.Consumer, w.cfg.BatchSize, block)
	if err != nil {
		return stats, err
	}
	w.handleAll(ctx, fresh, &stats)
	return stats, nil
}

func (w *AutoAdvancer) handleAll(ctx context.Context, msgs []cache.StreamMessage, stats *Stats) {
	for _, msg := range msgs {
		ack, result := w.handle(ctx, msg)
		metrics.AutoAdvanceTotal.WithLabelValues(result).Inc()

		switch {
		case !ack:
			stats.Pending++
			continue
		case result == metrics.ResultOK:
			stats.Advanced++
		case result == resultIgnored:
			stats.Ignored++
		default:
			stats.Skipped++
		}

		if err := w.stream.Ack(ctx, w.cfg.Stream, w.cfg.Group, msg.ID); err != nil {
			w.log.Warn("failed to ack intent", "message_id", msg.ID, "err", err)
		}
	}
}

const resultIgnored = "ignored"

// handle reports whether msg may be acked and the metric result.
func (w *AutoAdvancer) handle(ctx context.Context, msg cache.StreamMessage) (bool, string) {
	intent, err := notify.Decode(msg.Data)
	if err != nil {
		w.log.Warn("dropping malformed intent", "message_id", msg.ID, "err", err)
		return true, metrics.ResultSkipped
	}

	from, to, ok := lifecycle.AutoAdvanceTarget(intent.Type)
	if !ok {
		return true, resultIgnored
	}

	log := w.log.With("suggestion_id", intent.SuggestionID, "intent", intent.Type)

	s, err := w.engine.Get(ctx, intent.SuggestionID)
	if err != nil {
		return w.classify(log, err)
	}
	if s.Status != from {
		log.Debug("suggestion already moved on", "status", s.Status)
		return true, metrics.ResultSkipped
	}

	_, err = w.engine.Transition(ctx, lifecycle.TransitionRequest{
		SuggestionID:    intent.SuggestionID,
		RequestedStatus: to,
		Notes:           fmt.Sprintf("Automatic transition after %s", from),
		Actor:           lifecycle.SystemActor(),
	})
	if err != nil {
		return w.classify(log, err)
	}
	log.Info("suggestion advanced automatically", "from", from, "to", to)
	return true, metrics.ResultOK
}

// classify decides whether a failed follow-up is worth retrying.
func (w *AutoAdvancer) classify(log *slog.Logger, err error) (bool, string) {
	if svcErr.IsRetryable(err) {
		log.Warn("auto-advance failed, will retry", "err", err)
		return false, metrics.ResultError
	}
	log.Debug("auto-advance not applicable", "kind", svcErr.KindOf(err), "err", err)
	return true, metrics.ResultSkipped
}
