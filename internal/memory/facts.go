// ABOUTME: Fact memory with recording, relevance retrieval, summary, and wipe
// ABOUTME: Authoritative value per kind is most-recent; full history is kept

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/parley-sh/parley/internal/store"
)

// DefaultRelevantLimit bounds how many facts are injected into a turn's
// system note. Top-k keyword overlap keeps prompt growth bounded without
// requiring semantic matching.
const DefaultRelevantLimit = 4

// ErrWipeNotConfirmed is returned when Wipe is called without explicit
// confirmation from the observer.
var ErrWipeNotConfirmed = errors.New("wipe requires confirmation")

var tokenRe = regexp.MustCompile(`[a-z0-9']+`)

// summaryOrder fixes the rendering order of Summary so identical stores
// produce identical prompt text.
var summaryOrder = []store.FactKind{
	store.FactName,
	store.FactLocation,
	store.FactPreference,
	store.FactBackground,
	store.FactOther,
}

// Facts is the per-session fact memory. All mutation goes through the
// scheduler loop while a conversation runs (single-writer discipline); the
// lock covers idle-time callers only.
type Facts struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.RWMutex
	history []*store.Fact
	current map[store.FactKind]*store.Fact
}

// Load creates a Facts memory backed by s and loads any persisted facts.
func Load(ctx context.Context, s store.Store, logger *slog.Logger) (*Facts, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Facts{
		store:   s,
		logger:  logger.With("component", "memory"),
		current: make(map[store.FactKind]*store.Fact),
	}

	persisted, err := s.ListFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	for _, fact := range persisted {
		f.apply(fact)
	}
	if len(persisted) > 0 {
		f.logger.Info("fact memory loaded", "history", len(persisted), "kinds", len(f.current))
	}
	return f, nil
}

// apply merges one fact into the in-memory view. Caller holds the lock or
// is the only goroutine with a reference.
func (f *Facts) apply(fact *store.Fact) {
	f.history = append(f.history, fact)
	cur, ok := f.current[fact.Kind]
	if !ok || !fact.RecordedAt.Before(cur.RecordedAt) {
		f.current[fact.Kind] = fact
	}
}

// Record persists a fact and updates the authoritative value for its kind.
// Recording the same kind/value again appends to history but leaves exactly
// one authoritative value.
func (f *Facts) Record(ctx context.Context, fact *store.Fact) error {
	if err := f.store.SaveFact(ctx, fact); err != nil {
		return fmt.Errorf("recording fact: %w", err)
	}

	f.mu.Lock()
	f.apply(fact)
	f.mu.Unlock()

	f.logger.Debug("fact recorded",
		"kind", string(fact.Kind),
		"value", fact.Value,
		"source_turn", fact.SourceTurn,
	)
	return nil
}

// Current returns the authoritative fact for a kind, or nil.
func (f *Facts) Current(kind store.FactKind) *store.Fact {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current[kind]
}

// HistoryLen returns the total number of recorded facts, including
// superseded values.
func (f *Facts) HistoryLen() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.history)
}

// Relevant scores the authoritative facts by token overlap with the query
// and returns the top limit by descending score, ties broken by most
// recent first. Deterministic for identical inputs. Facts with zero
// overlap are omitted.
func (f *Facts) Relevant(query string, limit int) []*store.Fact {
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	f.mu.RLock()
	candidates := make([]*store.Fact, 0, len(f.current))
	for _, fact := range f.current {
		candidates = append(candidates, fact)
	}
	f.mu.RUnlock()

	type scored struct {
		fact  *store.Fact
		score int
	}
	var hits []scored
	for _, fact := range candidates {
		s := overlap(queryTokens, tokenize(fact.Value))
		if s > 0 {
			hits = append(hits, scored{fact, s})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].fact.RecordedAt.Equal(hits[j].fact.RecordedAt) {
			return hits[i].fact.RecordedAt.After(hits[j].fact.RecordedAt)
		}
		// Stable final tie-break so identical inputs give identical output.
		return hits[i].fact.Kind < hits[j].fact.Kind
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*store.Fact, len(hits))
	for i, h := range hits {
		out[i] = h.fact
	}
	return out
}

// Summary renders the authoritative fact per kind as one human-readable
// line each, in a fixed kind order. Empty string when nothing is known.
func (f *Facts) Summary() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var b strings.Builder
	for _, kind := range summaryOrder {
		fact, ok := f.current[kind]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", kind, fact.Value)
	}
	return b.String()
}

// Wipe clears all facts, in memory and persisted. It refuses to act
// without confirm; wiping is never auto-triggered.
func (f *Facts) Wipe(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrWipeNotConfirmed
	}
	if err := f.store.WipeFacts(ctx); err != nil {
		return fmt.Errorf("wiping facts: %w", err)
	}

	f.mu.Lock()
	f.history = nil
	f.current = make(map[store.FactKind]*store.Fact)
	f.mu.Unlock()

	f.logger.Warn("fact memory wiped")
	return nil
}

// tokenize lowercases text and splits it into word tokens.
func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// overlap counts how many distinct fact tokens appear in the query.
func overlap(queryTokens, factTokens []string) int {
	inQuery := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		inQuery[t] = true
	}
	counted := make(map[string]bool, len(factTokens))
	score := 0
	for _, t := range factTokens {
		if inQuery[t] && !counted[t] {
			counted[t] = true
			score++
		}
	}
	return score
}
