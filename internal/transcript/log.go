// ABOUTME: Appending timestamped transcript log file
// ABOUTME: One line per conversation event, flushed as it happens

package transcript

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/parley-sh/parley/internal/notify"
)

// timeLayout is the timestamp prefix on every transcript line.
const timeLayout = "2006-01-02 15:04:05"

// Log appends conversation lines to a file as they happen. Safe for
// concurrent use; each line is flushed before Write returns so a crash
// loses at most the line being written.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

// OpenLog opens (or creates) the transcript log at path in append mode.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening transcript log: %w", err)
	}
	return &Log{f: f}, nil
}

// Write appends one timestamped line.
func (l *Log) Write(sender, text string) error {
	line := fmt.Sprintf("[%s] %s: %s\n", time.Now().Format(timeLayout), sender, text)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("writing transcript line: %w", err)
	}
	return l.f.Sync()
}

// Record logs the conversation-visible kinds of an update event and
// ignores the rest.
func (l *Log) Record(ev notify.Event) error {
	switch ev.Kind {
	case notify.KindAgentReply, notify.KindUserMessage:
		return l.Write(ev.Sender, ev.Text)
	case notify.KindSystemNote:
		return l.Write("system", ev.Text)
	default:
		return nil
	}
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
