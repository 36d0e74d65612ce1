// ABOUTME: HTML export of a saved conversation
// ABOUTME: Renders the transcript as markdown through goldmark

package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/parley-sh/parley/internal/store"
)

const htmlHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 46em; margin: 2em auto; padding: 0 1em; line-height: 1.5; }
blockquote { color: #555; border-left: 3px solid #ccc; margin-left: 0; padding-left: 1em; }
</style>
</head>
<body>
`

const htmlFooter = "</body>\n</html>\n"

// ExportHTML renders transcript entries as an HTML page. Agent replies keep
// their markdown formatting; observer messages render as quotes and system
// notes as emphasis.
func ExportHTML(title string, entries []*store.TranscriptEntry, w io.Writer) error {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", title)

	for _, e := range entries {
		switch e.Role {
		case "assistant":
			label := e.Sender
			if e.OutOfBand {
				label += " (aside)"
			}
			fmt.Fprintf(&md, "**%s**: %s\n\n", label, e.Content)
		case "user":
			fmt.Fprintf(&md, "> **%s**: %s\n\n", e.Sender, e.Content)
		case "system":
			fmt.Fprintf(&md, "*%s*\n\n", e.Content)
		}
	}

	if _, err := fmt.Fprintf(w, htmlHeader, title); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	renderer := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := renderer.Convert([]byte(md.String()), w); err != nil {
		return fmt.Errorf("rendering transcript markdown: %w", err)
	}

	if _, err := io.WriteString(w, htmlFooter); err != nil {
		return fmt.Errorf("writing export footer: %w", err)
	}
	return nil
}
