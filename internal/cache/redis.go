package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oggyb/matchmaker/internal/config"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

const lockPrefix = "lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

// NewRedisCacheFromAddr is a shortcut for tests and tools.
func NewRedisCacheFromAddr(addr string) *RedisCache {
	return &RedisCache{Client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

//
// Locks
//

// Lock is a held distributed lock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock takes key with SET NX and a random token. It fails with
// ErrLockNotAcquired when someone else holds it.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := lockPrefix + key
	token := uuid.NewString()

	ok, err := c.Client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: c.Client, key: lockKey, token: token}, nil
}

// Release frees the lock if we still own it.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

//
// Streams
//

// StreamMessage is one entry read from a stream. Data holds the "data" field.
type StreamMessage struct {
	ID   string
	Data []byte
}

// Publish appends payload to stream under the "data" field. A positive
// maxLen trims the stream to roughly that many entries.
func (c *RedisCache) Publish(ctx context.Context, stream string, maxLen int64, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(payload)},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := c.Client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates a consumer group (and the stream) if missing.
func (c *RedisCache) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.Client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup reads new messages for consumer. A negative block returns
// immediately; zero blocks until a message arrives.
func (c *RedisCache) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	return c.readGroup(ctx, stream, group, consumer, ">", count, block)
}

// ReadPending returns messages delivered to consumer but never acked.
func (c *RedisCache) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]StreamMessage, error) {
	return c.readGroup(ctx, stream, group, consumer, "0", count, -1)
}

func (c *RedisCache) readGroup(ctx context.Context, stream, group, consumer, start string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := c.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, start},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // no messages
	}
	if err != nil {
		return nil, fmt.Errorf("read group %s: %w", group, err)
	}

	var out []StreamMessage
	for _, res := range results {
		for _, msg := range res.Messages {
			data, _ := msg.Values["data"].(string)
			out = append(out, StreamMessage{ID: msg.ID, Data: []byte(data)})
		}
	}
	return out, nil
}

// Ack acknowledges processed messages.
func (c *RedisCache) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return c.Client.XAck(ctx, stream, group, ids...).Err()
}
