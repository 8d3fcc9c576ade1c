package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/notify"
	"github.com/oggyb/matchmaker/internal/testutil"
)

func TestStreamNotifierAppendsIntent(t *testing.T) {
	ctx := context.Background()
	rc, _ := testutil.Redis(t)

	n := notify.NewStreamNotifier(rc, "suggestions:intents")
	require.NoError(t, rc.EnsureGroup(ctx, n.Stream(), "readers"))
	require.NoError(t, n.Enqueue(ctx, "suggestion.sent", "s-1", []uint64{7}))

	msgs, err := rc.ReadGroup(ctx, n.Stream(), "readers", "r1", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	in, err := notify.Decode(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "suggestion.sent", in.Type)
	assert.Equal(t, "s-1", in.SuggestionID)
	assert.Equal(t, []uint64{7}, in.Recipients)
	assert.False(t, in.EnqueuedAt.IsZero())
}

func TestStreamNotifierReportsRedisFailure(t *testing.T) {
	rc, mr := testutil.Redis(t)
	mr.Close()

	n := notify.NewStreamNotifier(rc, "suggestions:intents")
	assert.Error(t, n.Enqueue(context.Background(), "suggestion.sent", "s-1", []uint64{7}))
}

func TestStreamNotifierCapsStream(t *testing.T) {
	ctx := context.Background()
	rc, _ := testutil.Redis(t)

	n := notify.NewStreamNotifier(rc, "suggestions:intents").WithMaxLen(3)
	for _, id := range []string{"s-1", "s-2", "s-3", "s-4", "s-5"} {
		require.NoError(t, n.Enqueue(ctx, "suggestion.sent", id, []uint64{7}))
	}

	length, err := rc.Client.XLen(ctx, "suggestions:intents").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysBySuggestion(t *testing.T) {
	w := &fakeWriter{}
	n := notify.NewKafkaNotifier(w, "suggestion-intents")

	require.NoError(t, n.Enqueue(context.Background(), "suggestion.contact_shared", "s-9", []uint64{1, 2}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "suggestion-intents", msg.Topic)
	assert.Equal(t, "s-9", string(msg.Key))
	assert.Equal(t, "intent_type", msg.Headers[0].Key)
	assert.Equal(t, "suggestion.contact_shared", string(msg.Headers[0].Value))

	in, err := notify.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, in.Recipients)

	w.err = errors.New("broker unavailable")
	assert.Error(t, n.Enqueue(context.Background(), "suggestion.expired", "s-9", []uint64{3}))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.Enqueue(context.Background(), "suggestion.expired", "s-3", []uint64{100}))
	assert.Contains(t, buf.String(), "intent=suggestion.expired")
	assert.Contains(t, buf.String(), "suggestion_id=s-3")
}

func TestDecodeRejectsIncompleteIntent(t *testing.T) {
	_, err := notify.Decode([]byte(`{"type":"suggestion.sent"}`))
	assert.Error(t, err)
	_, err = notify.Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewPicksBackend(t *testing.T) {
	rc, _ := testutil.Redis(t)
	cfg := &config.Config{}

	cfg.Notify.Backend = "redis"
	cfg.Notify.Stream = "s"
	n, closeFn, err := notify.New(cfg, rc)
	require.NoError(t, err)
	assert.IsType(t, &notify.StreamNotifier{}, n)
	assert.NoError(t, closeFn())

	_, _, err = notify.New(cfg, nil)
	assert.Error(t, err)

	cfg.Notify.Backend = "kafka"
	cfg.Notify.KafkaBrokers = []string{"localhost:9092"}
	n, closeFn, err = notify.New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &notify.KafkaNotifier{}, n)
	assert.NoError(t, closeFn())

	cfg.Notify.Backend = "log"
	n, _, err = notify.New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)

	cfg.Notify.Backend = "pigeon"
	_, _, err = notify.New(cfg, nil)
	assert.Error(t, err)
}
