// ABOUTME: Package documentation for the task package
// ABOUTME: Describes background task dispatch, handles, and cancellation

// Package task runs long-running operations off the control goroutine and
// reports their outcome through the notification feed.
//
// # Dispatcher
//
// Spawn starts a unit of work on its own goroutine and returns a Handle
// immediately; the caller is never blocked by the work itself:
//
//	h := d.Spawn(task.KindAgentCall, agentID, func(ctx context.Context, h *task.Handle) (string, error) {
//	    if h.Cancelled() {
//	        return "", task.ErrCancelled
//	    }
//	    return client.Complete(ctx, req)
//	})
//
// Exactly one terminal feed event (done, failed, or cancelled) is posted per
// handle. A handle cancelled before its work observes the cancellation still
// gets exactly one terminal event, and its result (even a successful one
// that arrives late) is delivered as cancelled so the scheduler never
// applies it.
//
// # Cancellation
//
// Cancellation is cooperative. Cancel closes the handle's context and sets
// the cancellation flag; the work is expected to check Cancelled() at its
// checkpoints (at minimum: before dispatching a network call) and to pass
// the handle's context into anything that blocks. Work already past its
// last checkpoint runs to completion, but the dispatcher discards the
// outcome and reports the task as cancelled.
package task
