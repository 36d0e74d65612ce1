// ABOUTME: Background task dispatcher with handles and cooperative cancellation
// ABOUTME: Delivers exactly one terminal notification per task through the feed

package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-sh/parley/internal/notify"
)

// ErrCancelled is returned by work functions that notice cancellation at a
// checkpoint and abandon the unit of work.
var ErrCancelled = errors.New("task cancelled")

// Kind identifies what a task is doing. Used for logging and for the
// scheduler to tell conversation turns apart from admin work.
type Kind string

const (
	KindAgentCall   Kind = "agent_call"
	KindSingleAsk   Kind = "single_ask"
	KindModelList   Kind = "model_list"
	KindModelPull   Kind = "model_pull"
	KindModelRemove Kind = "model_remove"
)

// State is the completion state of a task.
type State int

const (
	StatePending State = iota
	StateDone
	StateFailed
	StateCancelled
)

// Work is a unit of background work. It receives the handle's context and
// the handle itself for checkpointing, and returns the result text or an
// error. Implementations must not touch shared session state; they operate
// on the snapshots they captured at spawn time.
type Work func(ctx context.Context, h *Handle) (string, error)

// Handle represents one outstanding background task.
type Handle struct {
	ID        string
	Kind      Kind
	AgentID   string // empty for tasks not bound to an agent
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	cancelled bool
}

// Cancelled reports whether Cancel has been called on the handle. Work
// functions check this at their checkpoints.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// State returns the handle's completion state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Context returns the context that is cancelled when the handle is
// cancelled. Work passes it into blocking calls.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// markCancelled flags the handle. Returns false if the task already reached
// a terminal state, in which case cancellation has no effect.
func (h *Handle) markCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePending {
		return false
	}
	h.cancelled = true
	return true
}

// settle moves the handle to a terminal state. A handle cancelled before
// settling always settles as cancelled, regardless of how the work ended.
func (h *Handle) settle(s State) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		h.state = StateCancelled
	} else {
		h.state = s
	}
	return h.state
}

// Dispatcher spawns background tasks and reports their terminal state on
// the feed. It tracks outstanding handles so they can be cancelled.
type Dispatcher struct {
	feed   *notify.Feed
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*Handle
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher posting to the given feed. Pass nil
// logger for the default.
func NewDispatcher(feed *notify.Feed, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		feed:    feed,
		logger:  logger.With("component", "dispatcher"),
		pending: make(map[string]*Handle),
	}
}

// Spawn starts work on its own goroutine and returns its handle without
// blocking. Exactly one terminal event is posted to the feed when the work
// resolves.
func (d *Dispatcher) Spawn(kind Kind, agentID string, work Work) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:        uuid.New().String(),
		Kind:      kind,
		AgentID:   agentID,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	d.mu.Lock()
	d.pending[h.ID] = h
	d.mu.Unlock()

	d.logger.Debug("task spawned", "task_id", h.ID, "kind", string(kind), "agent_id", agentID)

	d.wg.Add(1)
	go d.run(h, work)
	return h
}

// run executes the work and posts the single terminal event.
func (d *Dispatcher) run(h *Handle, work Work) {
	defer d.wg.Done()
	defer h.cancel()
	defer func() {
		d.mu.Lock()
		delete(d.pending, h.ID)
		d.mu.Unlock()
	}()

	// Checkpoint before any work: a task cancelled between Spawn and here
	// never starts its network call.
	if h.Cancelled() {
		d.post(h, h.settle(StateCancelled), "", nil)
		return
	}

	text, err := work(h.ctx, h)

	var final State
	switch {
	case err == nil:
		final = h.settle(StateDone)
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		final = h.settle(StateCancelled)
	default:
		final = h.settle(StateFailed)
	}

	// A cancelled handle's result is withheld even if the work succeeded
	// late: lost work, never corrupted state.
	if final == StateCancelled {
		text, err = "", nil
	}
	if final != StateFailed {
		err = nil
	}
	d.post(h, final, text, err)
}

// post emits the terminal feed event for a settled handle.
func (d *Dispatcher) post(h *Handle, s State, text string, err error) {
	ev := notify.Event{
		TaskID:  h.ID,
		AgentID: h.AgentID,
		Text:    text,
		Err:     err,
	}
	switch s {
	case StateDone:
		ev.Kind = notify.KindTaskDone
	case StateCancelled:
		ev.Kind = notify.KindTaskCancelled
	default:
		ev.Kind = notify.KindTaskFailed
	}

	d.logger.Debug("task settled",
		"task_id", h.ID,
		"kind", string(h.Kind),
		"state", ev.Kind.String(),
		"elapsed", time.Since(h.StartedAt),
	)
	d.feed.Post(ev)
}

// Cancel requests cancellation of an outstanding task. Work past its last
// checkpoint runs to completion, but its result is reported as cancelled.
// Cancelling a settled or unknown handle is a no-op.
func (d *Dispatcher) Cancel(h *Handle) {
	if h == nil {
		return
	}
	if h.markCancelled() {
		d.logger.Debug("task cancel requested", "task_id", h.ID, "kind", string(h.Kind))
		h.cancel()
	}
}

// Wait blocks until all spawned tasks have settled. Used on shutdown so
// terminal events are flushed before the feed closes.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Outstanding returns the number of unsettled tasks.
func (d *Dispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
