package conversation

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Store persists threads. Implementations must be safe for concurrent use.
type Store interface {
	// SaveThread creates or updates a thread's metadata.
	SaveThread(ctx context.Context, info ThreadInfo) error

	// SaveMessage inserts a message or replaces the stored copy with the
	// same id, keeping its original position.
	SaveMessage(ctx context.Context, threadID string, rec Record) error

	// LoadThread returns the thread metadata and its messages in order.
	// Unknown ids return ErrThreadNotFound.
	LoadThread(ctx context.Context, threadID string) (ThreadInfo, []Record, error)

	// ListThreads returns a session's threads, oldest first.
	ListThreads(ctx context.Context, sessionID string) ([]ThreadInfo, error)

	// DeleteThread removes a thread and its messages.
	DeleteThread(ctx context.Context, threadID string) error
}

// Save writes the thread metadata and every message.
func Save(ctx context.Context, s Store, t *Thread) error {
	if err := s.SaveThread(ctx, t.Info()); err != nil {
		return err
	}
	for _, r := range t.Records() {
		if err := s.SaveMessage(ctx, t.ID(), r); err != nil {
			return err
		}
	}
	return nil
}

type memThread struct {
	info    ThreadInfo
	records []Record
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memThread
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*memThread)}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// SaveThread implements Store.
func (s *MemoryStore) SaveThread(_ context.Context, info ThreadInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[info.ID]; ok {
		t.info = info
		return nil
	}
	s.threads[info.ID] = &memThread{info: info}
	return nil
}

// SaveMessage implements Store.
func (s *MemoryStore) SaveMessage(_ context.Context, threadID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	for i := range t.records {
		if t.records[i].ID == rec.ID {
			t.records[i] = rec
			return nil
		}
	}
	t.records = append(t.records, rec)
	return nil
}

// LoadThread implements Store.
func (s *MemoryStore) LoadThread(_ context.Context, threadID string) (ThreadInfo, []Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return ThreadInfo{}, nil, ErrThreadNotFound
	}
	return t.info, slices.Clone(t.records), nil
}

// ListThreads implements Store.
func (s *MemoryStore) ListThreads(_ context.Context, sessionID string) ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ThreadInfo
	for _, t := range s.threads {
		if t.info.SessionID == sessionID {
			out = append(out, t.info)
		}
	}
	slices.SortFunc(out, func(a, b ThreadInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// DeleteThread implements Store.
func (s *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}
