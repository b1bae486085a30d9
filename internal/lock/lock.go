// Package lock provides short-lived mutual-exclusion leases over named
// resources, backed by Redis. There is no queueing or fairness: a failed
// acquisition means "busy, retry later".
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while the caller still owns it, as a
// single atomic operation. A plain GET+DEL could release a lock that
// expired and was reacquired by another caller in between.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Service struct {
	client redisClient
}

func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

// Acquire sets key to a fresh ownership token if it is not already held,
// with the given TTL. It returns the token on success and "" when the key
// is held by someone else. An error means the store was unreachable;
// callers must treat that as a failed reservation, not as "lock held".
func (s *Service) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release deletes key only if it still holds the caller's token.
func (s *Service) Release(ctx context.Context, key, token string) error {
	if err := s.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
