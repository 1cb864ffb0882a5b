package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store provides cross-process mutual exclusion per transaction ID plus a
// durable processed-marker namespace used as a fast duplicate filter in
// front of the payment record.
type Store interface {
	// Acquire attempts set-if-absent on lock:<txnID> with the given TTL.
	// ok is false when another owner holds the lock.
	Acquire(ctx context.Context, txnID string, ttl time.Duration) (token string, ok bool, err error)
	// Release deletes the lock only if token still owns it.
	Release(ctx context.Context, txnID, token string) error
	// Validate reports whether token is still the current owner.
	Validate(ctx context.Context, txnID, token string) (bool, error)
	// MarkProcessed records that txnID reached a terminal outcome.
	MarkProcessed(ctx context.Context, txnID string) error
	WasProcessed(ctx context.Context, txnID string) (bool, error)
}

// Delete only when the stored token matches; a lock that expired and was
// re-acquired by someone else must never be released by the old owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisStore struct {
	client       *redis.Client
	processedTTL time.Duration
}

func NewRedisStore(client *redis.Client, processedTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, processedTTL: processedTTL}
}

func lockKey(txnID string) string      { return "lock:" + txnID }
func processedKey(txnID string) string { return "processed:" + txnID }

func (s *RedisStore) Acquire(ctx context.Context, txnID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey(txnID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *RedisStore) Release(ctx context.Context, txnID, token string) error {
	// Result 0 means the lock already expired or was taken over; releasing
	// on an exit path must not fail for that.
	return releaseScript.Run(ctx, s.client, []string{lockKey(txnID)}, token).Err()
}

func (s *RedisStore) Validate(ctx context.Context, txnID, token string) (bool, error) {
	val, err := s.client.Get(ctx, lockKey(txnID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == token, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, txnID string) error {
	return s.client.Set(ctx, processedKey(txnID), "1", s.processedTTL).Err()
}

func (s *RedisStore) WasProcessed(ctx context.Context, txnID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(txnID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
