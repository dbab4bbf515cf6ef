package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tariffwise/tariffwise/pkg/store"
)

// LeaseStore implements store.LeaseStore on Redis for multi-node
// deployments where the training lock must be visible across hosts.
type LeaseStore struct {
	client *redis.Client
}

// NewLeaseStore wraps an existing Redis client.
func NewLeaseStore(client *redis.Client) *LeaseStore {
	return &LeaseStore{client: client}
}

func (s *LeaseStore) makeKey(name string) string {
	return fmt.Sprintf("tariffwise:lease:%s", name)
}

// Acquire tries to acquire the lease. Returns true if successful.
// If the lease is already held by holderID, it renews it.
func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	success, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if success {
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SetNX and Get; let the caller retry.
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}
	if val == holderID {
		return true, s.Renew(ctx, name, holderID, ttl)
	}
	return false, nil
}

// renewScript extends the expiry only when the holder still matches.
const renewScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Renew updates the expiry of an existing lease held by holderID.
func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	key := s.makeKey(name)
	ttlMs := int64(ttl / time.Millisecond)

	res, err := s.client.Eval(ctx, renewScript, []string{key}, holderID, ttlMs).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	success, ok := res.(int64)
	if !ok {
		return fmt.Errorf("unexpected return type from renew script")
	}
	if success != 1 {
		return fmt.Errorf("lease %s not held by %s", name, holderID)
	}
	return nil
}

// releaseScript deletes the lease only when the holder still matches.
const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// Release releases the lease if held by holderID.
func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	key := s.makeKey(name)
	if _, err := s.client.Eval(ctx, releaseScript, []string{key}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Get returns the current lease state, or nil if absent.
func (s *LeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	lease := &store.Lease{Name: name, HolderID: getCmd.Val()}
	if ttl := ttlCmd.Val(); ttl > 0 {
		lease.ExpiresAt = time.Now().Add(ttl)
	}
	return lease, nil
}
