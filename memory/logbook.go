// Package memory persists every handled text message to an append-only log
// and answers recall queries by scanning that log newest-first.
//
// The log is deliberately primitive: one line per message, never rewritten,
// file order equals chronological order. Concurrent webhook deliveries rely
// on O_APPEND single-write semantics rather than an application lock, which
// holds because entries are independent lines.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rites-dev/perplexity-tele-bot/internal/fsstore"
)

type Entry struct {
	Time     time.Time
	ChatID   int64
	Category string
	Text     string
}

type Logbook struct {
	path string
	now  func() time.Time
}

func NewLogbook(path string) *Logbook {
	return &Logbook{
		path: strings.TrimSpace(path),
		now:  time.Now,
	}
}

func (l *Logbook) Path() string {
	return l.path
}

// Append records one message. The text field is JSON-quoted so embedded
// quotes and control characters cannot break the one-line-per-entry format.
func (l *Logbook) Append(chatID int64, category, text string) error {
	if l == nil || l.path == "" {
		return fmt.Errorf("memory: logbook path not configured")
	}
	line := FormatLine(l.now().UTC(), chatID, category, text)
	return fsstore.AppendLine(l.path, line, fsstore.FileOptions{})
}

func FormatLine(ts time.Time, chatID int64, category, text string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		category = "other"
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		quoted = []byte(`""`)
	}
	return fmt.Sprintf("[%s] chat:%d category:%s text:%s",
		ts.UTC().Format(time.RFC3339), chatID, category, quoted)
}
