package revocation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces permission version keys
const DefaultKeyPrefix = "accessd:pv:"

// Store tracks a monotonically increasing permission version per user.
// Tokens carry the version current at login; a token whose version is lower
// than Current was issued before the user's permissions last changed.
type Store interface {
	Current(ctx context.Context, userID int64) (int64, error)
	Bump(ctx context.Context, userID int64) (int64, error)
}

// RedisStore keeps versions in Redis counters
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis backed version store. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

// Current returns the user's version, 0 when it was never bumped
func (s *RedisStore) Current(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Get(ctx, s.key(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read permission version for user %d: %w", userID, err)
	}
	return v, nil
}

// Bump increments the user's version and returns the new value
func (s *RedisStore) Bump(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Incr(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump permission version for user %d: %w", userID, err)
	}
	return v, nil
}

// NopStore is used when revocation checks are disabled. Every user stays at
// version 0, so no token is ever considered stale.
type NopStore struct{}

func (NopStore) Current(context.Context, int64) (int64, error) { return 0, nil }

func (NopStore) Bump(context.Context, int64) (int64, error) { return 0, nil }

var (
	_ Store = (*RedisStore)(nil)
	_ Store = NopStore{}
)
