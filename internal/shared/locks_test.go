package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Lock(ctx, "tenant|item|wh||")
			require.NoError(t, err)
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, max, "critical section must never run concurrently")
	require.Empty(t, m.entries, "entries must be reclaimed after release")
}

func TestKeyMutexPairOrdering(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	// Opposite lock orders on the same pair must not deadlock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				release, err := m.LockPair(ctx, "a", "b")
				require.NoError(t, err)
				release()
			}()
			go func() {
				defer wg.Done()
				release, err := m.LockPair(ctx, "b", "a")
				require.NoError(t, err)
				release()
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pair locking deadlocked")
	}
}

func TestKeyMutexPairSameKey(t *testing.T) {
	m := NewKeyMutex()
	release, err := m.LockPair(context.Background(), "x", "x")
	require.NoError(t, err)
	release()
	require.Empty(t, m.entries)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "tenant|item|wh||")
	require.NoError(t, err)

	// A second holder must wait; with a short context it should fail fast.
	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "tenant|item|wh||")
	require.Error(t, err)

	release()

	release2, err := locker.Lock(ctx, "tenant|item|wh||")
	require.NoError(t, err)
	release2()
}
