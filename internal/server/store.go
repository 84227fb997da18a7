package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/storyline/internal/play"
)

var ErrNotFound = errors.New("not found")

// SessionStore parks play sessions between requests.
type SessionStore interface {
	Get(ctx context.Context, id string) (play.Snapshot, error)
	Put(ctx context.Context, id string, snap play.Snapshot) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in process. Entries expire after ttl of
// inactivity.
type MemorySessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]memorySession
}

type memorySession struct {
	snap    play.Snapshot
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memorySession),
	}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (play.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return play.Snapshot{}, ErrNotFound
	}
	if s.ttl > 0 && s.now().After(m.expires) {
		delete(s.sessions, id)
		return play.Snapshot{}, ErrNotFound
	}
	return m.snap, nil
}

func (s *MemorySessionStore) Put(_ context.Context, id string, snap play.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Sweep on write so abandoned sessions do not pile up.
	now := s.now()
	for k, m := range s.sessions {
		if s.ttl > 0 && now.After(m.expires) {
			delete(s.sessions, k)
		}
	}
	s.sessions[id] = memorySession{snap: snap, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// RedisSessionStore keeps sessions as JSON under storyline:session:<id>.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return "storyline:session:" + id
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (play.Snapshot, error) {
	var snap play.Snapshot
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("reading session: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding session: %w", err)
	}
	return snap, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, id string, snap play.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}
