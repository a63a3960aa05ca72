package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/library-system/auth-service/internal/domain"
)

const (
	swapStatusNotFound int64 = 0
	swapStatusMismatch int64 = 1
	swapStatusSwapped  int64 = 2
)

// KEYS[1] record key; ARGV[1] presented; ARGV[2] next; ARGV[3] ttl ms.
const swapRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 2
`

// KEYS[1] record key; ARGV[1] expected value.
const deleteIfMatchScript = `
local current = redis.call("GET", KEYS[1])
if current and current == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

var (
	swapRefreshLua   = redis.NewScript(swapRefreshScript)
	deleteIfMatchLua = redis.NewScript(deleteIfMatchScript)
)

// RedisRefreshStore keeps one key per member whose TTL equals the refresh
// token lifetime. Swap and DeleteIfMatch run as Lua scripts, so the compare
// and the write happen in one atomic step on the server.
type RedisRefreshStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRefreshStore builds a store namespacing keys under prefix.
func NewRedisRefreshStore(client redis.UniversalClient, prefix string) *RedisRefreshStore {
	return &RedisRefreshStore{client: client, prefix: prefix}
}

func (s *RedisRefreshStore) key(username string) string {
	return s.prefix + ":refresh:" + username
}

func (s *RedisRefreshStore) Get(ctx context.Context, username string) (*domain.RefreshRecord, error) {
	value, err := s.client.Get(ctx, s.key(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshRecordNotFound
		}
		return nil, fmt.Errorf("redis get refresh record: %w", err)
	}
	return &domain.RefreshRecord{Username: username, Value: value}, nil
}

func (s *RedisRefreshStore) Put(ctx context.Context, username, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("refresh record ttl must be positive")
	}
	if err := s.client.Set(ctx, s.key(username), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis put refresh record: %w", err)
	}
	return nil
}

func (s *RedisRefreshStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("redis delete refresh record: %w", err)
	}
	return nil
}

func (s *RedisRefreshStore) Swap(ctx context.Context, username, presented, next string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("refresh record ttl must be positive")
	}
	status, err := swapRefreshLua.Run(ctx, s.client,
		[]string{s.key(username)},
		presented, next, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis swap refresh record: %w", err)
	}

	switch status {
	case swapStatusSwapped:
		return nil
	case swapStatusMismatch:
		return ErrRefreshRecordMismatch
	case swapStatusNotFound:
		return ErrRefreshRecordNotFound
	default:
		return fmt.Errorf("redis swap refresh record: unexpected status %d", status)
	}
}

func (s *RedisRefreshStore) DeleteIfMatch(ctx context.Context, username, value string) (bool, error) {
	deleted, err := deleteIfMatchLua.Run(ctx, s.client, []string{s.key(username)}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("redis delete refresh record: %w", err)
	}
	return deleted == 1, nil
}
