package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidID indicates an empty conversation ID.
var ErrInvalidID = errors.New("invalid conversation id")

// Store keeps conversation histories by ID. Loading an unknown ID returns an
// empty history.
type Store interface {
	Load(ctx context.Context, id string) (History, error)
	Append(ctx context.Context, id string, turns ...Turn) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewStore builds the store selected by cfg.Store.
func NewStore(ctx context.Context, cfg config.ConversationsConfig) (Store, error) {
	switch cfg.Store {
	case "memory", "":
		return NewMemoryStore(cfg.MaxTurns, cfg.TTL.Duration()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword.Value(),
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.MaxTurns, cfg.TTL.Duration()), nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", cfg.Store)
	}
}

type memoryEntry struct {
	history History
	touched time.Time
}

// MemoryStore is an in-process Store. Entries idle longer than ttl are
// dropped on access.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore keeping at most maxTurns turns per
// conversation. maxTurns <= 0 or ttl <= 0 disable the respective limit.
func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (History, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(id)
	if e == nil {
		return History{}, nil
	}
	return append(History(nil), e.history...), nil
}

func (s *MemoryStore) Append(_ context.Context, id string, turns ...Turn) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := History(turns).Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(id)
	if e == nil {
		e = &memoryEntry{}
		s.entries[id] = e
	}
	e.history = append(e.history, turns...)
	if s.maxTurns > 0 && len(e.history) > s.maxTurns {
		e.history = append(History(nil), e.history.Last(s.maxTurns)...)
	}
	e.touched = s.now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// live returns the entry for id, evicting it if expired. Callers hold mu.
func (s *MemoryStore) live(id string) *memoryEntry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(e.touched) > s.ttl {
		delete(s.entries, id)
		return nil
	}
	return e
}
