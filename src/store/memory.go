package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomlink/realtime/src/types"
)

// MemoryStore is an in-process MessageStore used in tests and in standalone
// mode when Redis is not configured.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string][]types.Envelope
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string][]types.Envelope)}
}

// SaveMessage appends an envelope to its chat's history.
func (s *MemoryStore) SaveMessage(_ context.Context, env types.Envelope) (string, error) {
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[env.ChatID] = append(s.chats[env.ChatID], env)
	return env.ID, nil
}

// LoadRecentMessages returns up to limit messages, most recent last.
func (s *MemoryStore) LoadRecentMessages(_ context.Context, chatID string, limit int) ([]types.Envelope, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.chats[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]types.Envelope, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
