// ABOUTME: Reply truncation, continuation decision, and sentence cleanup
// ABOUTME: Enforces the length budget at word boundaries and bounds continuations

package reply

import (
	"regexp"
	"strings"
	"unicode"
)

// Ellipsis is appended to replies cut by the length budget.
const Ellipsis = "…"

// continuationWindow is how far back from the end Process looks for
// terminal punctuation when deciding whether a reply stopped mid-sentence.
const continuationWindow = 12

// ContinuationPrompt is the user message appended when the scheduler asks
// an agent to finish a reply that stopped mid-sentence. Issued at most once
// per turn.
const ContinuationPrompt = "Please continue your previous reply."

var (
	sentenceRe      = regexp.MustCompile(`[^.!?\n]+[.!?…]?`)
	firstSentenceRe = regexp.MustCompile(`(?s)^.+?[.!?]`)
)

// Process trims the reply and applies the character budget. If the text
// exceeds maxChars it is cut at the last whitespace boundary at or before
// the limit and the ellipsis marker is appended. maxChars <= 0 disables the
// budget. The returned flag reports whether truncation happened.
func Process(raw string, maxChars int) (string, bool) {
	text := strings.TrimSpace(raw)
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}

	cut := text[:maxChars]
	if idx := lastBoundary(cut); idx > 0 {
		cut = cut[:idx]
	} else {
		// One unbroken word longer than the budget: hard cut, but never
		// leave a torn multibyte rune behind.
		cut = strings.ToValidUTF8(cut, "")
	}
	cut = strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})
	return cut + Ellipsis, true
}

// lastBoundary returns the byte index of the last whitespace run in s, or
// -1 if s contains none. Cutting at this index never splits a word.
func lastBoundary(s string) int {
	return strings.LastIndexFunc(s, unicode.IsSpace)
}

// NeedsContinuation reports whether an untruncated reply appears to end
// mid-sentence: no terminal punctuation within the trailing window. A reply
// cut by the length budget never warrants a continuation: it was complete,
// we shortened it.
func NeedsContinuation(text string, wasTruncated bool) bool {
	if wasTruncated {
		return false
	}
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}

	window := t
	if len(t) > continuationWindow {
		window = t[len(t)-continuationWindow:]
	}
	return !strings.ContainsAny(window, ".!?…")
}

// DedupeSentences removes consecutive duplicate sentences. Local models
// loop on occasion; adjacent repeats are noise, non-adjacent repeats may be
// deliberate emphasis and are kept.
func DedupeSentences(text string) string {
	if text == "" {
		return ""
	}
	parts := sentenceRe.FindAllString(text, -1)
	if parts == nil {
		return strings.TrimSpace(text)
	}

	out := make([]string, 0, len(parts))
	prev := ""
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" || s == prev {
			continue
		}
		out = append(out, s)
		prev = s
	}
	return strings.Join(out, " ")
}

// FirstSentence returns the first complete sentence of text, for short-turn
// mode. When no sentence terminator exists, the text up to the first clause
// break is returned with an ellipsis marker.
func FirstSentence(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}

	if loc := firstSentenceRe.FindString(t); loc != "" {
		return strings.TrimSpace(loc)
	}

	// No terminator anywhere: clip at the first clause break.
	if idx := strings.IndexAny(t, ",;:"); idx > 0 {
		t = t[:idx]
	}
	t = strings.TrimRight(strings.TrimSpace(t), " ,;:")
	if !strings.HasSuffix(t, ".") && !strings.HasSuffix(t, "!") && !strings.HasSuffix(t, "?") {
		t += Ellipsis
	}
	return t
}
