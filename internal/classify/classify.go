// Package classify assigns a memory category to free-form chat text using an
// ordered keyword rule table. First matching rule wins; the rules are plain
// substring checks on the lowercased text, nothing smarter.
package classify

import "strings"

type Category string

const (
	People      Category = "people"
	Preferences Category = "preferences"
	Tasks       Category = "tasks"
	Facts       Category = "facts"
	Other       Category = "other"
)

type rule struct {
	keywords []string
	category Category
}

// Rules are checked in order; keep the more specific relationship rules ahead
// of the generic "X is Y" fact rule.
var rules = []rule{
	{
		keywords: []string{
			"my teacher is", "my teacher's name",
			"my friend", "my mom", "my dad", "my mother", "my father",
			"my brother", "my sister", "my boss", "my wife", "my husband",
			"is called",
		},
		category: People,
	},
	{
		keywords: []string{
			"i like", "i love", "i hate", "i prefer", "i enjoy",
			"my favorite", "my favourite",
		},
		category: Preferences,
	},
	{
		keywords: []string{
			"i need to", "i have to", "i must", "remind me",
			"don't forget", "dont forget", "todo", "to-do",
		},
		category: Tasks,
	},
	{
		keywords: []string{" is ", " are ", " was ", " were "},
		category: Facts,
	},
}

// Classify maps text to one category. It is deterministic: the same input
// always yields the same category.
func Classify(text string) Category {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Other
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.category
			}
		}
	}
	return Other
}
