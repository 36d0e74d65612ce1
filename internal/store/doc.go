// ABOUTME: Package documentation for the store package
// ABOUTME: Describes fact and transcript persistence backed by SQLite

// Package store provides persistence for parley sessions: the fact memory
// and the conversation transcript.
//
// # Store interface
//
// The Store interface abstracts persistence so the memory and conversation
// packages can run against SQLite in production and MockStore in tests:
//
//	s, err := store.NewSQLiteStore("~/.local/share/parley/parley.db")
//
// # Facts
//
// Facts are durable, typed self-disclosures extracted from observer
// messages (kind, value, timestamp, source turn). Every recorded fact is
// kept for audit; the authoritative value per kind is the most recently
// recorded one. Facts are only removed by an explicit wipe.
//
// # Transcript
//
// Transcript entries are the append-only record of a session's messages,
// one row per message, keyed by session. They back the transcript export
// and let a restarted process show what happened.
//
// # SQLite
//
// SQLiteStore uses modernc.org/sqlite (no cgo) with WAL mode and creates
// its schema on open. A single process owns the database file.
package store
