// ABOUTME: Pattern-based extraction of self-disclosed facts from free text
// ABOUTME: Best-effort regex detection; empty result on no match, never an error

package memory

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parley-sh/parley/internal/store"
)

// extractor pairs a disclosure pattern with the fact kind it yields. The
// first capture group is the fact value.
type extractor struct {
	kind store.FactKind
	re   *regexp.Regexp
}

var extractors = []extractor{
	{store.FactName, regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z'\-]*(?: [A-Za-z][A-Za-z'\-]*)?)`)},
	{store.FactName, regexp.MustCompile(`(?i)\bcall me ([A-Za-z][A-Za-z'\-]*)`)},
	{store.FactLocation, regexp.MustCompile(`(?i)\bi live in ([A-Za-z][A-Za-z .'\-]*?)(?:[.,!?]|$)`)},
	{store.FactLocation, regexp.MustCompile(`(?i)\bi(?:'m| am) from ([A-Za-z][A-Za-z .'\-]*?)(?:[.,!?]|$)`)},
	{store.FactPreference, regexp.MustCompile(`(?i)\bi (?:like|love|enjoy|prefer) ([A-Za-z][A-Za-z0-9 .'\-]*?)(?:[.,!?]|$)`)},
	{store.FactBackground, regexp.MustCompile(`(?i)\bi work as an? ([A-Za-z][A-Za-z .'\-]*?)(?:[.,!?]|$)`)},
	{store.FactBackground, regexp.MustCompile(`(?i)\bi(?:'m| am) an? ([A-Za-z][A-Za-z .'\-]*?)(?:[.,!?]|$)`)},
}

// Extract detects self-disclosures in text and returns them as facts tagged
// with the source turn. Best-effort: unrecognized text yields an empty
// slice. At most one fact per kind is returned per call (first pattern
// wins), matching the upsert semantics of Record.
func Extract(text string, sourceTurn int) []*store.Fact {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var facts []*store.Fact
	seen := make(map[store.FactKind]bool, len(extractors))
	now := time.Now()

	for _, ex := range extractors {
		if seen[ex.kind] {
			continue
		}
		m := ex.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		if value == "" {
			continue
		}
		seen[ex.kind] = true
		facts = append(facts, &store.Fact{
			ID:         uuid.New().String(),
			Kind:       ex.kind,
			Value:      value,
			RecordedAt: now,
			SourceTurn: sourceTurn,
		})
	}
	return facts
}
