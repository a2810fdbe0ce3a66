package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "worker:instance:lock:"

// lockStore is the minimal Redis surface the lock needs, so tests can run
// against an in-memory implementation.
type lockStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type redisLockStore struct {
	client *redis.Client
}

func (s redisLockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s redisLockStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s redisLockStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, key, ttl).Result()
}

func (s redisLockStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s redisLockStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

// WorkerLock enforces that at most one process of a given worker type runs
// at a time. The holder renews the key on a heartbeat; if the key expires
// because the holder stalled, the next heartbeat reacquires it.
type WorkerLock struct {
	store      lockStore
	workerType string
	instanceID string
	ttl        time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWorkerLock builds a lock backed by Redis for the given worker type.
func NewWorkerLock(client *redis.Client, workerType string, ttl time.Duration) *WorkerLock {
	instanceID := fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixMilli())
	return newWorkerLock(redisLockStore{client: client}, workerType, instanceID, ttl)
}

func newWorkerLock(store lockStore, workerType, instanceID string, ttl time.Duration) *WorkerLock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &WorkerLock{
		store:      store,
		workerType: workerType,
		instanceID: instanceID,
		ttl:        ttl,
		stopCh:     make(chan struct{}),
	}
}

func (l *WorkerLock) key() string {
	return lockKeyPrefix + l.workerType
}

// InstanceID identifies this process in lock values and status output.
func (l *WorkerLock) InstanceID() string {
	return l.instanceID
}

// TryAcquire attempts to take the lock. Acquisition fails closed: any store
// error reads as "not acquired" so two workers never run on a flaky Redis.
func (l *WorkerLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key(), l.instanceID, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lock acquire failed for %s: %w", l.workerType, err)
	}
	if ok {
		log.Printf("[WORKER_LOCK] Acquired lock for %s (instance: %s)", l.workerType, l.instanceID)
		return true, nil
	}

	// The key exists. If it is ours (restart within TTL), renew it.
	holder, err := l.store.Get(ctx, l.key())
	if err != nil {
		return false, fmt.Errorf("lock holder check failed for %s: %w", l.workerType, err)
	}
	if holder == l.instanceID {
		if _, err := l.store.Expire(ctx, l.key(), l.ttl); err != nil {
			return false, fmt.Errorf("lock renew failed for %s: %w", l.workerType, err)
		}
		return true, nil
	}
	log.Printf("[WORKER_LOCK] Lock for %s held by %s", l.workerType, holder)
	return false, nil
}

// heartbeat runs one renewal step. Returns false when the lock is lost to
// another instance.
func (l *WorkerLock) heartbeat(ctx context.Context) bool {
	holder, err := l.store.Get(ctx, l.key())
	if err != nil {
		// Transient store errors do not forfeit the lock; the TTL decides.
		log.Printf("[WORKER_LOCK] Heartbeat read failed for %s: %v", l.workerType, err)
		return true
	}

	switch holder {
	case l.instanceID:
		if _, err := l.store.Expire(ctx, l.key(), l.ttl); err != nil {
			log.Printf("[WORKER_LOCK] Heartbeat renew failed for %s: %v", l.workerType, err)
		}
		return true
	case "":
		// Key expired while we stalled. Reacquire before anyone else does.
		ok, err := l.store.SetNX(ctx, l.key(), l.instanceID, l.ttl)
		if err != nil {
			log.Printf("[WORKER_LOCK] Heartbeat reacquire failed for %s: %v", l.workerType, err)
			return true
		}
		if ok {
			log.Printf("[WORKER_LOCK] Reacquired expired lock for %s", l.workerType)
			return true
		}
		return false
	default:
		log.Printf("[WORKER_LOCK] Lock for %s taken over by %s", l.workerType, holder)
		return false
	}
}

// StartHeartbeat renews the lock every ttl/4 until Release is called.
// onLost fires once if another instance takes the lock over.
func (l *WorkerLock) StartHeartbeat(onLost func()) {
	interval := l.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				alive := l.heartbeat(ctx)
				cancel()
				if !alive {
					if onLost != nil {
						onLost()
					}
					return
				}
			}
		}
	}()
}

// Release stops the heartbeat and deletes the key if we still hold it.
func (l *WorkerLock) Release(ctx context.Context) {
	l.stopOnce.Do(func() { close(l.stopCh) })

	holder, err := l.store.Get(ctx, l.key())
	if err != nil {
		log.Printf("[WORKER_LOCK] Release check failed for %s: %v", l.workerType, err)
		return
	}
	if holder != l.instanceID {
		return
	}
	if err := l.store.Del(ctx, l.key()); err != nil {
		log.Printf("[WORKER_LOCK] Release failed for %s: %v", l.workerType, err)
		return
	}
	log.Printf("[WORKER_LOCK] Released lock for %s", l.workerType)
}

// LockStatus describes one worker type lock for the infra endpoint.
type LockStatus struct {
	Type       string `json:"type"`
	Active     bool   `json:"active"`
	InstanceID string `json:"instanceId,omitempty"`
	TTLSeconds int64  `json:"ttl"`
}

// LockStatuses reads lock state for the given worker types. Status reads
// fail open: a Redis error yields an inactive entry instead of failing the
// whole endpoint.
func LockStatuses(ctx context.Context, client *redis.Client, workerTypes []string) []LockStatus {
	statuses := make([]LockStatus, 0, len(workerTypes))
	if client == nil {
		for _, t := range workerTypes {
			statuses = append(statuses, LockStatus{Type: t})
		}
		return statuses
	}

	store := redisLockStore{client: client}
	for _, t := range workerTypes {
		key := lockKeyPrefix + t
		holder, err := store.Get(ctx, key)
		if err != nil || holder == "" {
			statuses = append(statuses, LockStatus{Type: t})
			continue
		}
		ttl, err := store.TTL(ctx, key)
		if err != nil {
			ttl = 0
		}
		statuses = append(statuses, LockStatus{
			Type:       t,
			Active:     true,
			InstanceID: holder,
			TTLSeconds: int64(ttl.Seconds()),
		})
	}
	return statuses
}
