package memory

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rites-dev/perplexity-tele-bot/internal/fsstore"
)

// linePattern matches the append format written by FormatLine. The text field
// keeps its surrounding quotes so it can be decoded as a JSON string.
var linePattern = regexp.MustCompile(`^\[([^\]]+)\] chat:(-?\d+) category:(\S*) text:(".*")\s*$`)

// Recall scans the log newest-first for the latest entry whose text contains
// keyword (case-insensitive), optionally restricted to one category, and
// extracts the word following " is " when that word looks like a proper noun
// (starts uppercase). Returns ok=false when nothing qualifies or the log does
// not exist yet.
func (l *Logbook) Recall(keyword, category string) (string, bool, error) {
	if l == nil || l.path == "" {
		return "", false, nil
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	category = strings.TrimSpace(category)

	content, exists, err := fsstore.ReadText(l.path)
	if err != nil {
		return "", false, err
	}
	if !exists {
		return "", false, nil
	}

	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if category != "" && m[3] != category {
			continue
		}
		var text string
		if err := json.Unmarshal([]byte(m[4]), &text); err != nil {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(text), keyword) {
			continue
		}
		if value, ok := extractSubject(text); ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

// extractSubject takes the word right after the first literal " is " and
// accepts it only when its first letter is uppercase. "my teacher is Smith"
// yields "Smith"; "my teacher is great" yields nothing.
func extractSubject(text string) (string, bool) {
	idx := strings.Index(text, " is ")
	if idx < 0 {
		return "", false
	}
	fields := strings.Fields(text[idx+len(" is "):])
	if len(fields) == 0 {
		return "", false
	}
	word := strings.Trim(fields[0], `.,!?;:"'`)
	if word == "" {
		return "", false
	}
	r, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(r) {
		return "", false
	}
	return word, true
}
