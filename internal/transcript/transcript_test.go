// ABOUTME: Tests for the transcript log writer and HTML export
// ABOUTME: Checks line format, event filtering, and rendered HTML content

package transcript

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/internal/notify"
	"github.com/parley-sh/parley/internal/store"
)

var lineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Aria: morning tides$`)

func TestLog_WritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	l, err := OpenLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Write("Aria", "morning tides"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.Regexp(t, lineRe, lines[0])
}

func TestLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")

	l, err := OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Write("Aria", "one"))
	require.NoError(t, l.Close())

	l, err = OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Write("Bram", "two"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestLog_RecordFiltersEventKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	l, err := OpenLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(notify.Event{Kind: notify.KindAgentReply, Sender: "Aria", Text: "hello"}))
	require.NoError(t, l.Record(notify.Event{Kind: notify.KindUserMessage, Sender: "pat", Text: "hi"}))
	require.NoError(t, l.Record(notify.Event{Kind: notify.KindSystemNote, Text: "halted"}))
	require.NoError(t, l.Record(notify.Event{Kind: notify.KindStatus, Text: "noise"}))
	require.NoError(t, l.Record(notify.Event{Kind: notify.KindPullProgress, Text: "noise"}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 3, strings.Count(content, "\n"), "status and progress kinds are not transcript lines")
	assert.Contains(t, content, "Aria: hello")
	assert.Contains(t, content, "pat: hi")
	assert.Contains(t, content, "system: halted")
	assert.NotContains(t, content, "noise")
}

func TestExportHTML(t *testing.T) {
	entries := []*store.TranscriptEntry{
		{Role: "user", Sender: "opening", Content: "Hello, how are you?"},
		{Role: "assistant", Sender: "Bram", AgentID: "b", Content: "I'm *very* well, thank you."},
		{Role: "assistant", Sender: "Aria", AgentID: "a", Content: "Glad to hear it.", OutOfBand: true},
		{Role: "system", Content: "conversation halted"},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportHTML("Tide pools", entries, &buf))
	html := buf.String()

	assert.Contains(t, html, "<title>Tide pools</title>")
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<strong>Bram</strong>")
	assert.Contains(t, html, "<em>very</em>", "markdown inside replies renders")
	assert.Contains(t, html, "Aria (aside)")
	assert.Contains(t, html, "<blockquote>")
	assert.Contains(t, html, "<em>conversation halted</em>")
	assert.True(t, strings.HasSuffix(html, "</html>\n"))
}

func TestExportHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportHTML("Empty", nil, &buf))
	assert.Contains(t, buf.String(), "<h1")
}
