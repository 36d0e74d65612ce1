// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLiteStore semantics without touching the filesystem

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store for tests. It preserves the same ordering
// semantics as SQLiteStore (oldest first by recorded/created time).
type MockStore struct {
	mu         sync.Mutex
	facts      []*Fact
	transcript []*TranscriptEntry

	// FailSaveFact, when set, is returned by SaveFact. Lets tests exercise
	// persistence failures.
	FailSaveFact error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SaveFact appends a copy of the fact.
func (m *MockStore) SaveFact(_ context.Context, fact *Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaveFact != nil {
		return m.FailSaveFact
	}
	f := *fact
	m.facts = append(m.facts, &f)
	return nil
}

// ListFacts returns copies of all facts, oldest first.
func (m *MockStore) ListFacts(_ context.Context) ([]*Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Fact, len(m.facts))
	for i, f := range m.facts {
		c := *f
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

// WipeFacts clears all facts.
func (m *MockStore) WipeFacts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = nil
	return nil
}

// SaveTranscriptEntry appends a copy of the entry.
func (m *MockStore) SaveTranscriptEntry(_ context.Context, entry *TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	m.transcript = append(m.transcript, &e)
	return nil
}

// ListTranscript returns copies of a session's entries in insertion order.
// Empty sessionID spans all sessions.
func (m *MockStore) ListTranscript(_ context.Context, sessionID string, limit int) ([]*TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*TranscriptEntry
	for _, e := range m.transcript {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
