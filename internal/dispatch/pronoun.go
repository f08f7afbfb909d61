package dispatch

import (
	"regexp"
	"strings"
)

const contactVerbs = `mail|email|gmail|call|remind|message|tell|ask|text|ping|meet|notify|contact|send|invite|schedule|book`

var (
	// "her" right after a contact verb is an object, not a possessive.
	objectHer         = regexp.MustCompile(`(?i)\b(` + contactVerbs + `)\s+her\b`)
	objectPronoun     = regexp.MustCompile(`(?i)\b(` + contactVerbs + `|with|for|to|about|on)\s+(him|them)\b`)
	possessivePronoun = regexp.MustCompile(`(?i)\b(his|her|their)\b`)
	// questions about the client: "does he have", "is she in review"
	questionSubject = regexp.MustCompile(`(?i)\b(does|did|is|was|has|had|can|should|will)\s+(he|she)\b`)
	// statements about the client's holdings or needs: "she needs a call"
	holdingSubject = regexp.MustCompile(`(?i)\b(he|she|they)\s+(has|have|had|needs?|wants?|owes?|holds?|owns?|bought|sold)\b`)
)

// RewritePronouns substitutes the session's last entity name for third-person
// pronouns in client positions, so "what is her email" becomes "what is Maria
// Lopez's email". Pronouns elsewhere ("they say rates will rise") are left
// alone. Text is returned unchanged when name is empty.
func RewritePronouns(text, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return text
	}
	escaped := strings.ReplaceAll(name, "$", "$$")
	out := objectHer.ReplaceAllString(text, "${1} "+escaped)
	out = objectPronoun.ReplaceAllString(out, "${1} "+escaped)
	out = questionSubject.ReplaceAllString(out, "${1} "+escaped)
	out = holdingSubject.ReplaceAllString(out, escaped+" ${2}")
	return possessivePronoun.ReplaceAllLiteralString(out, name+"'s")
}
