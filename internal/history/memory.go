package history

import (
	"context"
	"sync"

	"github.com/novahub/nova-gateway/internal/orchestrator"
)

// MemoryStore is the in-process fallback used when no Redis address is
// configured. History disappears on restart, which is acceptable for
// development and single-node deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	exchanges map[string][]Exchange
	runs      map[string]*orchestrator.TaskState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exchanges: make(map[string][]Exchange),
		runs:      make(map[string]*orchestrator.TaskState),
	}
}

// AppendExchange prepends an exchange, trimming to the cap.
func (s *MemoryStore) AppendExchange(_ context.Context, ex Exchange) error {
	key := conversationKey(ex.UserID, ex.Platform)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]Exchange{ex}, s.exchanges[key]...)
	if len(list) > maxExchanges {
		list = list[:maxExchanges]
	}
	s.exchanges[key] = list
	return nil
}

// Recent returns up to n exchanges, newest first.
func (s *MemoryStore) Recent(_ context.Context, userID, platform string, n int) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.exchanges[conversationKey(userID, platform)]
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]Exchange, len(list))
	copy(out, list)
	return out, nil
}

// SaveRun checkpoints a terminal task state.
func (s *MemoryStore) SaveRun(_ context.Context, state *orchestrator.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[state.ThreadID] = state
	return nil
}

// LoadRun fetches a checkpointed task state by thread ID.
func (s *MemoryStore) LoadRun(_ context.Context, threadID string) (*orchestrator.TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[threadID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return state, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
