package intent

import (
	"regexp"
	"strings"
)

var (
	nonWord = regexp.MustCompile(`[^a-z0-9'@.\-]+`)

	aliasTable = map[string]string{
		"remainder": "reminder",
		"calender":  "calendar",
		"gcalender": "calendar",
		"gcal":      "calendar",
		"meting":    "meeting",
		"shedule":   "schedule",
		"emial":     "email",
		"recieve":   "receive",
		"pirce":     "price",
		"stcok":     "stock",
	}
	aliasPattern = buildAliasPattern()
)

func buildAliasPattern() *regexp.Regexp {
	words := make([]string, 0, len(aliasTable))
	for w := range aliasTable {
		words = append(words, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

// Aliases returns a copy of the typo alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliasTable))
	for k, v := range aliasTable {
		out[k] = v
	}
	return out
}

// ApplyAliases replaces known typos on word boundaries with their canonical
// spelling.
func ApplyAliases(text string) string {
	return aliasPattern.ReplaceAllStringFunc(text, func(m string) string {
		return aliasTable[strings.ToLower(m)]
	})
}

// padded is lowercased text with punctuation collapsed to single spaces and a
// leading and trailing space, so " phrase " tests a whole-word match.
type padded string

func pad(text string) padded {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "’", "'")
	cleaned := nonWord.ReplaceAllString(lower, " ")
	fields := strings.Fields(cleaned)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".-")
	}
	return padded(" " + strings.Join(fields, " ") + " ")
}

func (p padded) has(phrase string) bool {
	return strings.Contains(string(p), " "+phrase+" ")
}

func (p padded) hasAny(phrases ...string) bool {
	for _, ph := range phrases {
		if p.has(ph) {
			return true
		}
	}
	return false
}

// hasPrefixOf reports whether any word starts with stem.
func (p padded) hasPrefixOf(stem string) bool {
	return strings.Contains(string(p), " "+stem)
}

func (p padded) words() int {
	return len(strings.Fields(string(p)))
}
