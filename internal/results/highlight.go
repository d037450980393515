package results

import (
	"strings"
	"unicode/utf8"
)

// Fragment is a piece of text, flagged when it matched the query
type Fragment struct {
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// Highlight splits text into matched and unmatched fragments. Matching is
// case-insensitive; fragments keep the original casing.
func Highlight(text, query string) []Fragment {
	if text == "" {
		return nil
	}
	if query == "" {
		return []Fragment{{Text: text}}
	}

	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)
	// ToLower can change byte lengths for some runes; fall back to no match
	if len(lowerText) != len(text) || !utf8.ValidString(text) {
		return []Fragment{{Text: text}}
	}

	var frags []Fragment
	pos := 0
	for {
		i := strings.Index(lowerText[pos:], lowerQuery)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(lowerQuery)
		if start > pos {
			frags = append(frags, Fragment{Text: text[pos:start]})
		}
		frags = append(frags, Fragment{Text: text[start:end], Match: true})
		pos = end
	}
	if pos < len(text) {
		frags = append(frags, Fragment{Text: text[pos:]})
	}
	return frags
}
