// Package notify implements the notification port. Intents are recorded on
// a redis stream, a kafka topic or the log; delivery is someone else's job.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/logger"
)

// Intent is the wire form of a notification intent.
type Intent struct {
	Type         string    `json:"type"`
	SuggestionID string    `json:"suggestion_id"`
	Recipients   []uint64  `json:"recipients"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

func newIntent(intentType, suggestionID string, recipients []uint64) Intent {
	return Intent{
		Type:         intentType,
		SuggestionID: suggestionID,
		Recipients:   recipients,
		EnqueuedAt:   time.Now().UTC(),
	}
}

// Decode parses a stream or topic payload.
func Decode(data []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if in.Type == "" || in.SuggestionID == "" {
		return Intent{}, fmt.Errorf("decode intent: missing type or suggestion id")
	}
	return in, nil
}

//
// Redis stream
//

// DefaultStreamMaxLen caps the intent stream when no limit is configured.
const DefaultStreamMaxLen = 100_000

// StreamNotifier appends intents to a redis stream.
type StreamNotifier struct {
	cache  *cache.RedisCache
	stream string
	maxLen int64
}

func NewStreamNotifier(rc *cache.RedisCache, stream string) *StreamNotifier {
	return &StreamNotifier{cache: rc, stream: stream, maxLen: DefaultStreamMaxLen}
}

// WithMaxLen sets the approximate stream cap. Zero or less keeps the default.
func (n *StreamNotifier) WithMaxLen(maxLen int64) *StreamNotifier {
	if maxLen > 0 {
		n.maxLen = maxLen
	}
	return n
}

func (n *StreamNotifier) Stream() string { return n.stream }

func (n *StreamNotifier) Enqueue(ctx context.Context, intentType, suggestionID string, recipients []uint64) error {
	payload, err := json.Marshal(newIntent(intentType, suggestionID, recipients))
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	_, err = n.cache.Publish(ctx, n.stream, n.maxLen, payload)
	return err
}

//
// Kafka
//

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes intents to a kafka topic keyed by suggestion id,
// so all intents of one suggestion land on the same partition in order.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

// NewKafkaWriter builds the production writer.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(w MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: w, topic: topic}
}

func (n *KafkaNotifier) Enqueue(ctx context.Context, intentType, suggestionID string, recipients []uint64) error {
	payload, err := json.Marshal(newIntent(intentType, suggestionID, recipients))
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	msg := kafka.Message{
		Topic: n.topic,
		Key:   []byte(suggestionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "intent_type", Value: []byte(intentType)},
			{Key: "recipients", Value: []byte(strconv.Itoa(len(recipients)))},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write intent to %s: %w", n.topic, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error { return n.writer.Close() }

//
// Log
//

// LogNotifier only logs intents. Useful in development and tests.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = logger.Named("notify")
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Enqueue(_ context.Context, intentType, suggestionID string, recipients []uint64) error {
	n.log.Info("notification intent",
		"intent", intentType,
		"suggestion_id", suggestionID,
		"recipients", recipients,
	)
	return nil
}

//
// Factory
//

// Notifier is the port implemented by every backend.
type Notifier interface {
	Enqueue(ctx context.Context, intentType, suggestionID string, recipients []uint64) error
}

// New builds the configured backend. rc is required for the redis backend.
// The returned close func releases backend resources.
func New(cfg *config.Config, rc *cache.RedisCache) (Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Notify.Backend {
	case "", "redis":
		if rc == nil {
			return nil, noop, fmt.Errorf("redis notifier needs a redis client")
		}
		return NewStreamNotifier(rc, cfg.Notify.Stream).WithMaxLen(cfg.Notify.StreamMaxLen), noop, nil
	case "kafka":
		if len(cfg.Notify.KafkaBrokers) == 0 {
			return nil, noop, fmt.Errorf("kafka notifier needs KAFKA_BROKERS")
		}
		n := NewKafkaNotifier(NewKafkaWriter(cfg.Notify.KafkaBrokers), cfg.Notify.KafkaTopic)
		return n, n.Close, nil
	case "log":
		return NewLogNotifier(nil), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
}
