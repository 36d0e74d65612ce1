// ABOUTME: Package documentation for the conversation package
// ABOUTME: Describes the scheduler loop, state machine, and update fan-out

// Package conversation drives a turn-based exchange between two agents.
//
// # Control context
//
// The Scheduler's Run loop is the only goroutine that mutates session
// state: the per-agent message histories, the injection queue, the turn
// counter, and the in-flight task handle. Everything else talks to it
// through messages. Public methods (Start, Stop, Inject, Ask, Models,
// Pull, Remove) post commands to the loop; background work settles through
// the task dispatcher's feed; observers receive updates through the
// Broadcaster.
//
// # State machine
//
// The scheduler is Idle or Running. Start opens a run: both agents get a
// system prompt built from the topic, persona, and humanize settings, the
// greeting goes to the second agent, and turns alternate until the reply
// budget is spent or Stop is called. Inject has a dual contract: while
// idle the message opens a new run as its greeting; while running it joins
// a FIFO queue consumed exactly once at the next turn boundary. Ask runs a
// one-off question concurrently without touching the run state.
//
// # Turns
//
// Each turn spawns exactly one agent call; the conversation never
// pipelines two. A reply that trails off mid-thought earns a single
// continuation attempt before it is committed. Replies are cleaned,
// deduped, optionally shortened to the first sentence, and truncated at a
// word boundary before they reach the histories, the observers, and the
// transcript store. A failed turn halts the run with a visible system
// note. A cancelled call's late result is discarded: lost work, never
// corrupted state.
package conversation
