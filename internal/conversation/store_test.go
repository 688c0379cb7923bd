package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, maxTurns int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, maxTurns, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func storeContract(t *testing.T, newStore func(t *testing.T, maxTurns int) Store) {
	ctx := context.Background()

	t.Run("unknown id is empty", func(t *testing.T) {
		s := newStore(t, 10)
		h, err := s.Load(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, h)
	})

	t.Run("append and load in order", func(t *testing.T) {
		s := newStore(t, 10)
		require.NoError(t, s.Append(ctx, "c1", UserTurn("q1"), AssistantTurn("a1")))
		require.NoError(t, s.Append(ctx, "c1", UserTurn("q2")))

		h, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, History{UserTurn("q1"), AssistantTurn("a1"), UserTurn("q2")}, h)

		other, err := s.Load(ctx, "c2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("trims to max turns", func(t *testing.T) {
		s := newStore(t, 2)
		require.NoError(t, s.Append(ctx, "c", UserTurn("1"), AssistantTurn("2"), UserTurn("3")))
		h, err := s.Load(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, History{AssistantTurn("2"), UserTurn("3")}, h)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t, 10)
		require.NoError(t, s.Append(ctx, "c", UserTurn("x")))
		require.NoError(t, s.Delete(ctx, "c"))
		h, err := s.Load(ctx, "c")
		require.NoError(t, err)
		assert.Empty(t, h)
	})

	t.Run("rejects empty id and bad role", func(t *testing.T) {
		s := newStore(t, 10)
		_, err := s.Load(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.Append(ctx, "", UserTurn("x")), ErrInvalidID)
		assert.ErrorIs(t, s.Append(ctx, "c", Turn{Role: "tool", Content: "x"}), ErrInvalidTurn)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(_ *testing.T, maxTurns int) Store {
		return NewMemoryStore(maxTurns, time.Hour)
	})
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T, maxTurns int) Store {
		s, _ := setupRedisStore(t, maxTurns, time.Hour)
		return s
	})
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(ctx, "c", UserTurn("hello")))
	now = now.Add(30 * time.Second)
	h, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, h, 1)

	now = now.Add(2 * time.Minute)
	h, err = s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, 0)
	require.NoError(t, s.Append(ctx, "c", UserTurn("original")))

	h, err := s.Load(ctx, "c")
	require.NoError(t, err)
	h[0].Content = "mutated"

	again, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t, 10, time.Minute)

	require.NoError(t, s.Append(ctx, "c", UserTurn("hello")))
	assert.Equal(t, time.Minute, mr.TTL(redisKey("c")))

	mr.FastForward(2 * time.Minute)
	h, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t, 10, 0)
	_, err := mr.RPush(redisKey("c"), "{not json")
	require.NoError(t, err)

	_, err = s.Load(ctx, "c")
	assert.ErrorContains(t, err, "decoding turn")
}

func TestRedisStore_ServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	s := NewRedisStore(client, 10, 0)
	defer s.Close()
	_, err := s.Load(context.Background(), "c")
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, config.ConversationsConfig{Store: "memory", MaxTurns: 5})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = NewStore(ctx, config.ConversationsConfig{Store: "redis", RedisAddr: mr.Addr(), MaxTurns: 5})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, config.ConversationsConfig{Store: "redis", RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)

	_, err = NewStore(ctx, config.ConversationsConfig{Store: "etcd"})
	assert.Error(t, err)
}
