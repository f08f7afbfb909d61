// Package handlers holds helpers shared by the capability handlers in its
// subpackages.
package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
)

// fragmentEnd cuts a name fragment at the first word that starts a new clause.
var fragmentEnd = regexp.MustCompile(`(?i)\s+(about|regarding|re|on|at|tomorrow|today|tonight|next|this|to|and|please|from|by|in|via|with|for|saying|that)\b.*$`)

var leadWords = map[string]bool{
	"what": true, "is": true, "whats": true, "what's": true, "show": true, "me": true,
	"get": true, "the": true, "find": true, "tell": true, "give": true, "display": true,
	"look": true, "up": true, "lookup": true, "please": true, "can": true, "you": true,
	"pull": true, "check": true, "how": true, "does": true,
}

// Fragment returns the text following the first of markers, cut at the next
// clause word or punctuation. It returns "" when no marker is present.
func Fragment(text string, markers ...string) string {
	best := -1
	var end int
	for _, m := range markers {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(m) + `\s+`)
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best, end = loc[0], loc[1]
		}
	}
	if best == -1 {
		return ""
	}
	return CleanName(text[end:])
}

// PossessiveName returns the name in "<name>'s <noun>", where noun is a regular
// expression alternation, without leading question words.
func PossessiveName(text, noun string) string {
	re := regexp.MustCompile(`(?i)([a-z][a-z' .\-]*?)['’]s\s+(?:` + noun + `)\b`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	var name []string
	for _, w := range strings.Fields(m[1]) {
		if !leadWords[strings.ToLower(w)] {
			name = append(name, w)
		}
	}
	return strings.Join(name, " ")
}

// CleanName strips trailing clause words, punctuation and possessives.
func CleanName(s string) string {
	if i := strings.IndexAny(s, ",.?!;:\n"); i >= 0 {
		s = s[:i]
	}
	for _, poss := range []string{"'s ", "’s "} {
		if i := strings.Index(s, poss); i >= 0 {
			s = s[:i]
		}
	}
	s = fragmentEnd.ReplaceAllString(" "+strings.TrimSpace(s), "")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "'s")
	s = strings.TrimSuffix(s, "’s")
	return strings.Trim(s, `"' `)
}

// Unresolved turns a Disambiguation or NotFound resolver result into an
// Outcome. It returns nil for a resolved result.
func Unresolved(handler, category, fragment string, res *resolver.Result) *models.Outcome {
	switch res.Kind {
	case resolver.Disambiguation:
		names := make([]string, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			names = append(names, c.FullName)
		}
		return &models.Outcome{
			Handler:  handler,
			Category: category,
			Kind:     models.OutcomeDisambiguation,
			ResponseText: fmt.Sprintf("I found %d clients matching %q: %s. Which one did you mean?",
				len(names), fragment, strings.Join(names, ", ")),
			Candidates: res.Candidates,
		}
	case resolver.NotFound:
		text := "I couldn't tell which client you mean. Please include their name."
		if fragment != "" {
			text = fmt.Sprintf("I couldn't find a client matching %q.", fragment)
		}
		return &models.Outcome{
			Handler:      handler,
			Category:     category,
			Kind:         models.OutcomeNotFound,
			ResponseText: text,
		}
	}
	return nil
}

// MissingField reports that rec lacks field.
func MissingField(handler, category string, rec models.Record, field string) *models.Outcome {
	return &models.Outcome{
		Handler:      handler,
		Category:     category,
		Kind:         models.OutcomeNotFound,
		ResponseText: fmt.Sprintf("I don't have %s on file for %s.", fieldPhrase(field), rec.FullName),
		MissingField: field,
	}
}

func fieldPhrase(field string) string {
	switch field {
	case "email":
		return "an email address"
	case "account":
		return "an account number"
	case "follow_up_date":
		return "a follow-up date"
	}
	return "a " + strings.ReplaceAll(field, "_", " ")
}

// MentionsName reports whether text contains name or its first word.
func MentionsName(text, name string) bool {
	parts := strings.Fields(strings.ToLower(name))
	if len(parts) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(name)) {
		return true
	}
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(parts[0]) + `\b`).MatchString(lower)
}
