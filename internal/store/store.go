// ABOUTME: Store interface and data types for parley persistence
// ABOUTME: Defines Fact, TranscriptEntry and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// FactKind enumerates the typed self-disclosures the memory extracts.
type FactKind string

const (
	FactName       FactKind = "name"
	FactLocation   FactKind = "location"
	FactPreference FactKind = "preference"
	FactBackground FactKind = "background"
	FactOther      FactKind = "other"
)

// Fact is one durable piece of information extracted from conversation
// text. All facts are kept for audit; the authoritative value for a kind is
// the most recently recorded row.
type Fact struct {
	ID         string
	Kind       FactKind
	Value      string
	RecordedAt time.Time
	SourceTurn int
}

// TranscriptEntry is one persisted conversation message.
type TranscriptEntry struct {
	ID        string
	SessionID string
	Turn      int
	Role      string // system, user, assistant
	Sender    string // display label shown to the observer
	AgentID   string // empty for user/system entries
	Content   string
	OutOfBand bool // single-ask exchanges outside the alternating sequence
	CreatedAt time.Time
}

// Store defines the interface for fact and transcript persistence.
type Store interface {
	// Facts
	SaveFact(ctx context.Context, fact *Fact) error
	ListFacts(ctx context.Context) ([]*Fact, error)
	WipeFacts(ctx context.Context) error

	// Transcript. Empty sessionID lists across all sessions.
	SaveTranscriptEntry(ctx context.Context, entry *TranscriptEntry) error
	ListTranscript(ctx context.Context, sessionID string, limit int) ([]*TranscriptEntry, error)

	// Close releases any resources held by the store
	Close() error
}
