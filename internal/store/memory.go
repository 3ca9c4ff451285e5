package store

import (
	"context"
	"sync"

	"vidpair/internal/correlate"
	"vidpair/internal/model"
)

// MemoryStore is an in-memory correlation store for tests and local runs.
// Expiry is a read-time filter against the injected clock. Safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	clock   correlate.Clock
	records map[string]map[string]*model.ArrivalRecord // session -> canonical timestamp -> record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock correlate.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		records: make(map[string]map[string]*model.ArrivalRecord),
	}
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, rec model.ArrivalRecord) (correlate.InsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.records[rec.Session]
	if session == nil {
		session = make(map[string]*model.ArrivalRecord)
		m.records[rec.Session] = session
	}
	if _, ok := session[rec.CanonicalTimestamp]; ok {
		return correlate.AlreadyExists, nil
	}
	stored := rec
	session[rec.CanonicalTimestamp] = &stored
	return correlate.Inserted, nil
}

func (m *MemoryStore) QueryByRoleAndSession(_ context.Context, role model.Role, session string) ([]model.ArrivalRecord, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ArrivalRecord
	for _, rec := range m.records[session] {
		if rec.Role != role {
			continue
		}
		if !now.Before(rec.Expiry) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *MemoryStore) ClaimPair(_ context.Context, session, tsA, tsB string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.records[session][tsA]
	b := m.records[session][tsB]
	if a == nil || b == nil {
		return false, nil
	}
	if a.MatchedWith != "" || b.MatchedWith != "" {
		return false, nil
	}
	a.MatchedWith = tsB
	b.MatchedWith = tsA
	return true, nil
}

func (m *MemoryStore) ReleasePair(_ context.Context, session, tsA, tsB string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a := m.records[session][tsA]; a != nil && a.MatchedWith == tsB {
		a.MatchedWith = ""
	}
	if b := m.records[session][tsB]; b != nil && b.MatchedWith == tsA {
		b.MatchedWith = ""
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements the store interface
var _ correlate.Store = (*MemoryStore)(nil)
