package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "convrag:conversation:"

// RedisStore keeps each history as a Redis list of JSON turns. Every append
// trims the list to maxTurns and refreshes the TTL.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. maxTurns <= 0 keeps everything; ttl <= 0 never
// expires.
func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (History, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	raw, err := s.client.LRange(ctx, redisKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	h := make(History, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		h = append(h, t)
	}
	return h, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, turns ...Turn) error {
	if id == "" {
		return ErrInvalidID
	}
	if len(turns) == 0 {
		return nil
	}
	if err := History(turns).Validate(); err != nil {
		return err
	}

	values := make([]any, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		values[i] = data
	}

	key := redisKey(id)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.maxTurns > 0 {
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending to conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
