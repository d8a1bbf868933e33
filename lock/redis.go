package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPrefix = "checkmate:lock"

// ErrTimeout is returned when a Redis lock could not be taken within Wait.
var ErrTimeout = errors.New("lock wait timed out")

// unlockScript deletes the key only if it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed lock built on SET NX with a TTL.
type Redis struct {
	Client *redis.Client
	Prefix string

	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration
	// Retry is the polling interval while the key is held elsewhere.
	Retry time.Duration
	// Wait caps the total time spent acquiring. Zero waits until ctx is done.
	Wait time.Duration

	Logger *zap.Logger
}

// RedisOptions mirror the connection settings in config.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient opens a client and verifies it with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedis locks through client. Keys expire after ttl and Lock waits at
// most ttl for a held key.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		Client: client,
		Prefix: lockPrefix,
		TTL:    ttl,
		Retry:  25 * time.Millisecond,
		Wait:   ttl,
		Logger: zap.NewNop(),
	}
}

func (r *Redis) key(k string) string {
	var sb strings.Builder
	sb.WriteString(r.Prefix)
	if k != "" {
		sb.WriteString(":")
		sb.WriteString(k)
	}
	return sb.String()
}

// TryLock makes a single attempt. ok is false when the key is held elsewhere.
func (r *Redis) TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error) {
	full := r.key(key)
	token := uuid.NewString()

	ok, err = r.Client.SetNX(ctx, full, token, r.TTL).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		// Release even if the caller's ctx is already done.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, r.Client, []string{full}, token).Err(); err != nil {
			r.logger().Warn("redis unlock failed", zap.String("key", full), zap.Error(err))
		}
	}, true, nil
}

// Lock polls TryLock until it succeeds, ctx is done, or Wait elapses.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	ticker := time.NewTicker(r.retry())
	defer ticker.Stop()

	for {
		unlock, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) retry() time.Duration {
	if r.Retry <= 0 {
		return 25 * time.Millisecond
	}
	return r.Retry
}

func (r *Redis) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
