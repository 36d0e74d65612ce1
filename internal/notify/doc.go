// ABOUTME: Package documentation for the notify package
// ABOUTME: Describes the single-consumer event feed and its ordering guarantees

// Package notify provides the ordered delivery path between background work
// and the one context allowed to mutate observer-visible state.
//
// # Feed
//
// A Feed is a multi-producer, single-consumer event queue:
//
//	feed := notify.NewFeed(nil)
//	go func() {
//	    for ev := range feed.Events() {
//	        apply(ev)
//	    }
//	}()
//	feed.Post(notify.Event{Kind: notify.KindStatus, Text: "starting"})
//
// Guarantees:
//
//   - Events are delivered in arrival order (FIFO at the queue). Per-producer
//     order is preserved; ordering across producers is whatever order their
//     posts reached the queue.
//   - Events are never dropped. Post blocks when the buffer is full rather
//     than discarding, because every event here is either a state mutation or
//     a user-visible status line.
//   - Exactly one goroutine should drain Events(). That goroutine is the only
//     place session state and observer-visible state may be mutated.
//
// # Event kinds
//
// Events cover the whole conversation lifecycle: status lines, agent replies,
// injected user messages, system notes, turn failures, admin results (model
// list, pull progress), and task terminal states. Every failure travels as an
// event; nothing is silently dropped.
package notify
