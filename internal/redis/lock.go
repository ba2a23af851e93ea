package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles short-lived dispatch locks in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireTripDispatchLock attempts to lock a trip while offers are fanned out.
func (s *LockStore) AcquireTripDispatchLock(ctx context.Context, tripID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:dispatch:%s", tripID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseTripDispatchLock releases the dispatch lock of a trip.
func (s *LockStore) ReleaseTripDispatchLock(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, fmt.Sprintf("lock:dispatch:%s", tripID)).Err()
}
