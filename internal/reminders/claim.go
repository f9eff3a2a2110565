package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer marks a reminder as taken so that it is published once, even with
// several replicas scanning the same bookings.
type Claimer interface {
	// Claim reports whether key was free. A successful claim holds key for ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up a claim whose reminder was not published.
	Release(ctx context.Context, key string) error
}

// RedisClaimer claims with SET NX, shared by every replica on the same Redis.
type RedisClaimer struct {
	client redis.UniversalClient
}

func NewRedisClaimer(client redis.UniversalClient) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release deletes key even when ctx is already cancelled.
func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	return c.client.Del(rctx, key).Err()
}

// MemoryClaimer keeps claims in process. Expired keys are dropped lazily.
type MemoryClaimer struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{expires: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.expires, k)
		}
	}
	if _, held := c.expires[key]; held {
		return false, nil
	}
	c.expires[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expires, key)
	return nil
}

// Len returns the number of tracked claims.
func (c *MemoryClaimer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expires)
}
