package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memLockStore is an in-memory lockStore. Expiry is driven manually via
// expire() so tests never sleep.
type memLockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	setNXErr  error
	getErr    error
	expireErr error
}

func newMemLockStore() *memLockStore {
	return &memLockStore{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (s *memLockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setNXErr != nil {
		return false, s.setNXErr
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *memLockStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.data[key], nil
}

func (s *memLockStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireErr != nil {
		return false, s.expireErr
	}
	if _, exists := s.data[key]; !exists {
		return false, nil
	}
	s.ttls[key] = ttl
	return true, nil
}

func (s *memLockStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *memLockStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key], nil
}

// expire simulates the key falling out of Redis.
func (s *memLockStore) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
}

func (s *memLockStore) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func TestWorkerLock_FirstInstanceWins(t *testing.T) {
	store := newMemLockStore()
	a := newWorkerLock(store, "inbound", "100-1", time.Minute)
	b := newWorkerLock(store, "inbound", "200-2", time.Minute)

	ctx := context.Background()

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWorkerLock_SameInstanceRenews(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "outbound", "100-1", time.Minute)

	ctx := context.Background()

	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A restart within the TTL sees its own key and renews.
	ok, err = l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkerLock_DifferentTypesAreIndependent(t *testing.T) {
	store := newMemLockStore()
	a := newWorkerLock(store, "inbound", "100-1", time.Minute)
	b := newWorkerLock(store, "media", "100-1", time.Minute)

	ctx := context.Background()

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkerLock_AcquireFailsClosedOnStoreError(t *testing.T) {
	store := newMemLockStore()
	store.setNXErr = errors.New("connection refused")
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ok, err := l.TryAcquire(context.Background())
	require.Error(t, err)
	require.False(t, ok)
}

func TestWorkerLock_HeartbeatReacquiresExpiredLock(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.expire(l.key())

	require.True(t, l.heartbeat(ctx))

	holder, err := store.Get(ctx, l.key())
	require.NoError(t, err)
	require.Equal(t, "100-1", holder)
}

func TestWorkerLock_HeartbeatDetectsTakeover(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Another instance grabbed the key after our TTL expired.
	store.set(l.key(), "999-9")

	require.False(t, l.heartbeat(ctx))
}

func TestWorkerLock_HeartbeatSurvivesStoreErrors(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Transient read failure must not forfeit the lock.
	store.getErr = errors.New("i/o timeout")
	require.True(t, l.heartbeat(ctx))
}

func TestWorkerLock_ReleaseOnlyDeletesOwnKey(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Someone else took over; release must leave their key alone.
	store.set(l.key(), "999-9")
	l.Release(ctx)

	holder, err := store.Get(ctx, l.key())
	require.NoError(t, err)
	require.Equal(t, "999-9", holder)
}

func TestWorkerLock_ReleaseDeletesHeldKey(t *testing.T) {
	store := newMemLockStore()
	l := newWorkerLock(store, "inbound", "100-1", time.Minute)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	l.Release(ctx)

	holder, err := store.Get(ctx, l.key())
	require.NoError(t, err)
	require.Empty(t, holder)
}
