package lock

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), StaffKey("t1", "s1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedMutexExclusive(t *testing.T) {
	m := NewKeyedMutex()
	exerciseMutualExclusion(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), StaffKey("t1", "s1"))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := m.Lock(ctx, StaffKey("t1", "s2"))
	require.NoError(t, err)
	unlockB()

	unlockC, err := m.Lock(ctx, StaffKey("t2", "s1"))
	require.NoError(t, err)
	unlockC()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Equal(t, 0, m.Len())
}

func newRedisLocker(t *testing.T, maxWait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return NewRedisLocker(client, 5*time.Second, maxWait, &logger), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	l, mr := newRedisLocker(t, 5*time.Second)
	exerciseMutualExclusion(t, l)
	assert.False(t, mr.Exists(StaffKey("t1", "s1")))
}

func TestRedisLockerTimeoutAndTTL(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	key := StaffKey("t1", "s1")

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	_, err = l.Lock(context.Background(), key)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists(key))

	// A lock left behind by a dead holder expires.
	_, err = l.Lock(context.Background(), key)
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)
	unlock2, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLockerReleaseOnlyOwnToken(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	key := StaffKey("t1", "s1")

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	// Someone else took the key after expiry; our unlock must not delete it.
	require.NoError(t, mr.Set(key, "other-holder"))
	unlock()

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-holder", v)
}

func TestScopeKeysOrder(t *testing.T) {
	assert.Equal(t, []string{"salonsched:lock:t1:s1"}, Scope{TenantID: "t1", StaffID: "s1"}.Keys())
	assert.Equal(t, []string{
		"salonsched:lock:t1",
		"salonsched:lock:t1:client:c1",
		"salonsched:lock:t1:s1",
	}, Scope{TenantID: "t1", StaffID: "s1", ClientID: "c1", TenantWide: true}.Keys())
}

func TestAcquireReleasesHeldKeysOnFailure(t *testing.T) {
	m := NewKeyedMutex()
	blocker, err := m.Lock(context.Background(), ClientKey("t1", "c1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = Acquire(ctx, m, Scope{TenantID: "t1", StaffID: "s1", ClientID: "c1", TenantWide: true})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The tenant key taken before the client key was given back.
	unlock, err := m.Lock(context.Background(), TenantKey("t1"))
	require.NoError(t, err)
	unlock()
	blocker()
	assert.Equal(t, 0, m.Len())
}

func TestAcquireSerializesSharedTenantKey(t *testing.T) {
	m := NewKeyedMutex()
	unlock, _, err := Acquire(context.Background(), m, Scope{TenantID: "t1", StaffID: "s1", TenantWide: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = Acquire(ctx, m, Scope{TenantID: "t1", StaffID: "s2", TenantWide: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, _, err := Acquire(context.Background(), m, Scope{TenantID: "t1", StaffID: "s2", TenantWide: true})
	require.NoError(t, err)
	unlock2()
	assert.Equal(t, 0, m.Len())
}
