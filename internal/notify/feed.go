// ABOUTME: Ordered multi-producer single-consumer event feed
// ABOUTME: Marshals all cross-goroutine updates to the one context that mutates state

package notify

import (
	"log/slog"
	"sync"
	"time"
)

// feedBufferSize is the channel buffer for the feed. Posts block (rather
// than drop) once the buffer is full; the consumer is expected to keep up.
const feedBufferSize = 256

// Kind identifies the type of an event on the feed.
type Kind int

const (
	KindStatus       Kind = iota // informational status line
	KindAgentReply               // a completed agent turn
	KindUserMessage              // an injected observer message
	KindSystemNote               // system-authored conversation note
	KindTurnFailed               // a turn that ended in error
	KindModels                   // result of a model list refresh
	KindPullProgress             // progress line from a model pull
	KindTaskDone                 // background task finished
	KindTaskFailed               // background task failed
	KindTaskCancelled            // background task cancelled
	KindRunFinished              // conversation left the Running state
)

// String returns a short name for the kind, used in logs.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindAgentReply:
		return "agent_reply"
	case KindUserMessage:
		return "user_message"
	case KindSystemNote:
		return "system_note"
	case KindTurnFailed:
		return "turn_failed"
	case KindModels:
		return "models"
	case KindPullProgress:
		return "pull_progress"
	case KindTaskDone:
		return "task_done"
	case KindTaskFailed:
		return "task_failed"
	case KindTaskCancelled:
		return "task_cancelled"
	case KindRunFinished:
		return "run_finished"
	default:
		return "unknown"
	}
}

// Event is a single item on the feed. Only the fields relevant to the Kind
// are populated.
type Event struct {
	Kind      Kind
	TaskID    string    // originating task handle, when there is one
	AgentID   string    // agent the event concerns, when there is one
	Sender    string    // display label for reply/user events
	Text      string    // message body or status text
	Err       error     // for failure kinds
	Models    []string  // for KindModels
	Timestamp time.Time // set by Post if zero
}

// Feed is an ordered multi-producer, single-consumer event queue.
// Exactly one goroutine should drain Events().
type Feed struct {
	ch     chan Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewFeed creates a feed. Pass nil logger for the default.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		ch:     make(chan Event, feedBufferSize),
		logger: logger.With("component", "feed"),
	}
}

// Post enqueues an event. It blocks if the buffer is full and is a no-op
// after Close. Safe for concurrent use.
func (f *Feed) Post(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.logger.Debug("event posted after close", "kind", ev.Kind.String())
		return
	}
	// Hold the lock across the send so Close cannot close the channel
	// between the check and the send. The consumer drains independently,
	// so the send cannot deadlock against Close.
	f.ch <- ev
	f.mu.Unlock()
}

// Events returns the receive side of the feed. The channel is closed by
// Close after all posted events have been delivered.
func (f *Feed) Events() <-chan Event {
	return f.ch
}

// Close marks the feed closed and closes the event channel. Events already
// posted remain readable; later posts are discarded. Safe to call multiple
// times.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
