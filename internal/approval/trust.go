package approval

import (
	"sync"
	"time"
)

// DefaultTrustTTL is how long a session-once approval keeps a session trusted.
const DefaultTrustTTL = time.Hour

// Record is a session's blanket approval. ExpiresAt is always after ApprovedAt.
type Record struct {
	SessionID  string    `json:"session_id"`
	ApprovedAt time.Time `json:"approved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ActiveAt reports whether the record still grants trust at t.
func (r Record) ActiveAt(t time.Time) bool {
	return t.Before(r.ExpiresAt)
}

// TrustStoreConfig configures a TrustStore.
type TrustStoreConfig struct {
	// TTL is the trust window. Defaults to DefaultTrustTTL.
	TTL time.Duration

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// TrustStore holds at most one trust record per session. A missing or
// expired record means untrusted, never trusted-by-default.
type TrustStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

// NewTrustStore creates an empty store.
func NewTrustStore(cfg TrustStoreConfig) *TrustStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTrustTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TrustStore{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		records: make(map[string]Record),
	}
}

// TTL returns the trust window.
func (s *TrustStore) TTL() time.Duration { return s.ttl }

// Grant writes a fresh record for sessionID, replacing any previous one.
func (s *TrustStore) Grant(sessionID string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := Record{
		SessionID:  sessionID,
		ApprovedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	s.records[sessionID] = rec
	return rec
}

// Lookup returns the session's record if it is still active.
func (s *TrustStore) Lookup(sessionID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok || !rec.ActiveAt(s.now()) {
		return Record{}, false
	}
	return rec, true
}

// Revoke drops the session's record.
func (s *TrustStore) Revoke(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
}

// Prune deletes expired records and returns how many were removed.
func (s *TrustStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if !rec.ActiveAt(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored records, expired ones included.
func (s *TrustStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
