// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers fact round-trip, wipe, transcript ordering, schema checks

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_FactRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	fact := &Fact{
		ID:         uuid.New().String(),
		Kind:       FactLocation,
		Value:      "Seattle",
		RecordedAt: time.Now().UTC().Truncate(time.Second),
		SourceTurn: 3,
	}
	require.NoError(t, s.SaveFact(ctx, fact))

	facts, err := s.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, fact.ID, facts[0].ID)
	assert.Equal(t, FactLocation, facts[0].Kind)
	assert.Equal(t, "Seattle", facts[0].Value)
	assert.Equal(t, 3, facts[0].SourceTurn)
	assert.True(t, fact.RecordedAt.Equal(facts[0].RecordedAt.UTC()))
}

func TestSQLiteStore_ListFactsOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	base := time.Now().UTC().Truncate(time.Second)
	for i, v := range []string{"first", "second", "third"} {
		require.NoError(t, s.SaveFact(ctx, &Fact{
			ID:         uuid.New().String(),
			Kind:       FactOther,
			Value:      v,
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	facts, err := s.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	assert.Equal(t, "first", facts[0].Value)
	assert.Equal(t, "third", facts[2].Value)
}

func TestSQLiteStore_DuplicateRecordsKeepHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	base := time.Now().UTC().Truncate(time.Second)
	for i := range 2 {
		require.NoError(t, s.SaveFact(ctx, &Fact{
			ID:         uuid.New().String(),
			Kind:       FactName,
			Value:      "Alex",
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	facts, err := s.ListFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, facts, 2, "history keeps every record")
}

func TestSQLiteStore_RejectsUnknownFactKind(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveFact(t.Context(), &Fact{
		ID:         uuid.New().String(),
		Kind:       FactKind("mood"),
		Value:      "curious",
		RecordedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestSQLiteStore_WipeFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveFact(ctx, &Fact{
		ID: uuid.New().String(), Kind: FactName, Value: "Alex", RecordedAt: time.Now(),
	}))
	require.NoError(t, s.WipeFacts(ctx))

	facts, err := s.ListFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestSQLiteStore_TranscriptRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	sessionID := uuid.New().String()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []*TranscriptEntry{
		{ID: uuid.New().String(), SessionID: sessionID, Turn: 0, Role: "system", Sender: "system", Content: "greeting", CreatedAt: base},
		{ID: uuid.New().String(), SessionID: sessionID, Turn: 1, Role: "assistant", Sender: "Ava", AgentID: "agent-a", Content: "hello", CreatedAt: base.Add(time.Second)},
		{ID: uuid.New().String(), SessionID: sessionID, Turn: 1, Role: "user", Sender: "Observer", Content: "injected", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.SaveTranscriptEntry(ctx, e))
	}

	got, err := s.ListTranscript(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "greeting", got[0].Content)
	assert.Equal(t, "agent-a", got[1].AgentID)
	assert.Empty(t, got[2].AgentID)

	limited, err := s.ListTranscript(ctx, sessionID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_TranscriptSessionsIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveTranscriptEntry(ctx, &TranscriptEntry{
		ID: uuid.New().String(), SessionID: "session-1", Role: "user",
		Sender: "Observer", Content: "one", CreatedAt: time.Now(),
	}))

	got, err := s.ListTranscript(ctx, "session-2", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_OutOfBandFlagSurvives(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveTranscriptEntry(ctx, &TranscriptEntry{
		ID: uuid.New().String(), SessionID: "s", Role: "assistant",
		Sender: "Ava", Content: "aside", OutOfBand: true, CreatedAt: time.Now(),
	}))

	got, err := s.ListTranscript(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].OutOfBand)
}
