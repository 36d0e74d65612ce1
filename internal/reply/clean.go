// ABOUTME: Normalization of raw model output before post-processing
// ABOUTME: Strips speaker labels, smart punctuation, and repeated marks

package reply

import (
	"regexp"
	"strings"
)

var (
	speakerLabelRe   = regexp.MustCompile(`(?m)^\s*[A-Za-z0-9_]{1,32}:\s+`)
	repeatedDotsRe   = regexp.MustCompile(`\.{2,}`)
	repeatedMarksRe  = regexp.MustCompile(`([!?]){2,}`)
	missingSpaceRe   = regexp.MustCompile(`([.!?])([^\s.,!?…"')\]])`)
	collapsedSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
)

var smartPunct = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", `'`, "’", `'`,
	"—", "-", "–", "-",
)

// Clean normalizes raw model output: drops leading speaker labels the model
// echoed back ("Agent_A: ..."), straightens smart quotes and dashes,
// collapses runs of punctuation and whitespace, and joins lines into one
// paragraph. Local models produce all of these routinely.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	s := speakerLabelRe.ReplaceAllString(raw, "")
	s = smartPunct.Replace(s)
	s = repeatedDotsRe.ReplaceAllString(s, "...")
	s = repeatedMarksRe.ReplaceAllString(s, "$1")
	s = missingSpaceRe.ReplaceAllString(s, "$1 $2")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if t := strings.TrimSpace(ln); t != "" {
			kept = append(kept, t)
		}
	}
	s = strings.Join(kept, " ")
	s = collapsedSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
