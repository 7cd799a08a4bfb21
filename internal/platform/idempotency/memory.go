package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	fingerprint string
	done        bool
	response    StoredResponse
	expiresAt   time.Time
}

// MemoryStore keeps claims in process memory. Used in tests and local runs;
// production wires the Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if !ok || !now.Before(entry.expiresAt) {
		s.entries[id] = memoryEntry{fingerprint: fingerprint, expiresAt: now.Add(ttl)}
		return Claim{State: StateNew}, nil
	}
	if entry.fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if !entry.done {
		return Claim{State: StateInFlight}, nil
	}
	return Claim{State: StateReplay, Response: entry.response}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry := s.entries[id]
	entry.done = true
	entry.response = StoredResponse{
		Status: resp.Status,
		Header: resp.Header,
		Body:   append([]byte(nil), resp.Body...),
	}
	entry.expiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, docID(key))
	return nil
}
