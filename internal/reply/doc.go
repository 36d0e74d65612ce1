// ABOUTME: Package documentation for the reply package
// ABOUTME: Describes truncation, continuation, and sentence cleanup policy

// Package reply post-processes raw agent replies before they enter the
// conversation history.
//
// # Truncation
//
// Process cuts a reply that exceeds the character budget at the last
// whitespace boundary at or before the limit, never mid-word, and appends
// an ellipsis marker:
//
//	text, truncated := reply.Process(raw, 200)
//
// # Continuation
//
// NeedsContinuation reports whether an untruncated reply appears to stop
// mid-sentence (no terminal punctuation inside the trailing window). The
// scheduler issues at most one continuation request per turn based on this;
// the bound prevents unbounded request chains against a model that never
// terminates cleanly.
//
// # Cleanup
//
// DedupeSentences drops consecutive duplicate sentences, and FirstSentence
// supports the short-turn mode where a reply is clipped to its first
// complete sentence. Both mirror the behavior the conversation loop has
// always applied to chatty local models.
package reply
