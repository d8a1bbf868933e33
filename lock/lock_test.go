package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// KEYED MUTEX
// =============================================================================

func TestKeyedMutex_SameKey_Serialized(t *testing.T) {
	// GIVEN: 50 goroutines contending for one key
	// WHEN: Each increments a shared counter inside the critical section
	// THEN: At most one is ever inside, and every increment lands

	km := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside, total int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "emp-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&total, 1)
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(50), total)
	assert.Zero(t, km.size(), "entries are released when unused")
}

func TestKeyedMutex_DifferentKeys_Independent(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedMutex_ContextCanceled_WhileWaiting(t *testing.T) {
	// GIVEN: A held key
	// WHEN: A second caller waits with a short deadline
	// THEN: It gives up with the context error and leaves no entry behind

	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = km.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Zero(t, km.size())
}

// =============================================================================
// REDIS (miniredis, or a live server when REDIS_ADDR is set)
// =============================================================================

// newTestRedis returns a lock backed by REDIS_ADDR when set, otherwise by an
// in-process miniredis. The miniredis handle is nil for a live server.
func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	var mr *miniredis.Miniredis
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr = miniredis.RunT(t)
		addr = mr.Addr()
	}
	client, err := NewRedisClient(context.Background(), RedisOptions{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	r := NewRedis(client, 2*time.Second)
	r.Prefix = "checkmate:test:" + t.Name()
	return r, mr
}

func TestRedis_TryLock_Exclusive(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	unlock, ok, err := r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	unlock()

	unlock2, ok, err := r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, ok, "key is free after unlock")
	unlock2()
}

func TestRedis_TryLock_SetsTTL(t *testing.T) {
	r, mr := newTestRedis(t)
	if mr == nil {
		t.Skip("needs miniredis")
	}

	unlock, ok, err := r.TryLock(context.Background(), "emp-1")
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	key := r.key("emp-1")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Second, mr.TTL(key))
}

func TestRedis_ExpiredHolder_CannotReleaseNewHolder(t *testing.T) {
	// GIVEN: A holder whose key expired and was taken by someone else
	// WHEN: The first holder finally unlocks
	// THEN: The second holder still owns the key

	r, mr := newTestRedis(t)
	if mr == nil {
		t.Skip("needs miniredis to fast-forward the TTL")
	}
	ctx := context.Background()

	stale, ok, err := r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	fresh, ok, err := r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	require.True(t, ok, "expired key is free")

	stale()

	_, ok, err = r.TryLock(ctx, "emp-1")
	require.NoError(t, err)
	assert.False(t, ok, "stale unlock must not delete the new token")

	fresh()
	assert.False(t, mr.Exists(r.key("emp-1")))
}

func TestRedis_Lock_WaitsForRelease(t *testing.T) {
	r, _ := newTestRedis(t)
	r.Retry = 5 * time.Millisecond
	ctx := context.Background()

	unlock, err := r.Lock(ctx, "emp-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()

	unlock2, err := r.Lock(ctx, "emp-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_Lock_TimesOut(t *testing.T) {
	r, _ := newTestRedis(t)
	r.Wait = 50 * time.Millisecond
	ctx := context.Background()

	unlock, err := r.Lock(ctx, "emp-1")
	require.NoError(t, err)
	defer unlock()

	_, err = r.Lock(ctx, "emp-1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRedis_Lock_Canceled(t *testing.T) {
	r, _ := newTestRedis(t)
	r.Wait = 0

	unlock, err := r.Lock(context.Background(), "emp-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = r.Lock(ctx, "emp-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedis_ServerDown(t *testing.T) {
	r, mr := newTestRedis(t)
	if mr == nil {
		t.Skip("needs miniredis to stop the server")
	}
	mr.Close()

	_, err := r.Lock(context.Background(), "emp-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}
