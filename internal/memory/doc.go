// ABOUTME: Package documentation for the memory package
// ABOUTME: Describes fact extraction, relevance retrieval, and the single-writer rule

// Package memory maintains the per-session fact memory: durable, typed
// pieces of information the observer disclosed during conversation.
//
// # Extraction
//
// Extract detects self-disclosures with fixed patterns ("my name is X",
// "I live in Y", "I like Z") and returns typed facts. It is best-effort:
// no match means an empty result, never an error. Semantic matching was
// considered and deliberately deferred; the patterns are training-free and
// deterministic.
//
// # Recording and retrieval
//
// Record appends to the fact history and updates the authoritative value
// for the fact's kind (most recent wins; all history is kept for audit).
// Relevant scores stored facts by token overlap with a query and returns
// the top few, most-recent-first on ties: the minimal mechanism that
// bounds prompt growth while staying deterministic. Summary renders the
// authoritative fact per kind for injection into system context.
//
// # Concurrency
//
// The store follows a single-writer discipline: while a conversation is
// running, only the scheduler loop calls Record and Wipe, so relevance
// scoring never races a write. The internal lock exists for the idle-time
// callers (CLI wipe, startup load), not for concurrent turn traffic.
package memory
