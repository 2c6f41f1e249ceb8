package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps webhook keys in process memory. It backs dev mode and
// tests; expired keys are evicted lazily on the next Begin for the same key.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Begin implements the Store interface.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := storageKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if ok && !now.Before(rec.ExpiresAt) {
		delete(s.records, id)
		ok = false
	}
	if !ok {
		rec = Record{
			Key:         id,
			Fingerprint: fingerprint,
			State:       StateInFlight,
			StoredAt:    now,
			ExpiresAt:   now.Add(ttl),
		}
		s.records[id] = rec
		return OutcomeNew, rec, nil
	}

	if rec.Fingerprint != fingerprint {
		return OutcomeNew, Record{}, ErrKeyReused
	}
	if rec.State == StateDone {
		return OutcomeReplay, copyRecord(rec), nil
	}
	return OutcomeInFlight, copyRecord(rec), nil
}

// Complete implements the Store interface.
func (s *MemoryStore) Complete(_ context.Context, rec Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := storageKey(rec.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok && existing.Fingerprint != rec.Fingerprint {
		return ErrKeyReused
	}

	rec.Key = id
	rec.State = StateDone
	rec.Body = append([]byte(nil), rec.Body...)
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	rec.ExpiresAt = rec.StoredAt.Add(ttl)
	s.records[id] = rec
	return nil
}

// Abandon implements the Store interface.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, storageKey(key))
	return nil
}

func copyRecord(rec Record) Record {
	rec.Body = append([]byte(nil), rec.Body...)
	return rec
}
