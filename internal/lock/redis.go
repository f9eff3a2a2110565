package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every scheduler replica pointing at the same Redis.
// The TTL bounds how long a crashed holder can block a staff member.
type RedisLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retry   time.Duration
	maxWait time.Duration
	logger  zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. Zero durations get defaults.
func NewRedisLocker(client redis.UniversalClient, ttl, maxWait time.Duration, logger *zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "redis_lock").Logger()
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond, maxWait: maxWait, logger: l}
}

// ErrLockTimeout is returned when the key stays held past the wait budget.
var ErrLockTimeout = errors.New("lock wait timeout")

// Lock polls SET NX until it wins, ctx is done or maxWait elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)
	wait := l.retry

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, ErrLockTimeout)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}, nil
}
