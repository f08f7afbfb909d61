// internal/models/query_types.go
package models

import (
	"strings"
	"time"
)

// Category is a coarse intent class attached to a query by the classifier.
type Category string

// Signal is one ranked classifier result.
type Signal struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// Query is a single user utterance bound to a session. It is not modified
// after the dispatcher has classified it.
type Query struct {
	Text       string    `json:"text"`
	SessionID  string    `json:"sessionId"`
	ReceivedAt time.Time `json:"receivedAt"`
	Signals    []Signal  `json:"signals,omitempty"`

	// Original holds the text as received, before pronoun and alias rewriting.
	Original string `json:"original,omitempty"`
}

// Lower returns the lowercased query text.
func (q *Query) Lower() string {
	return strings.ToLower(q.Text)
}

// Words returns the whitespace separated words of the query text.
func (q *Query) Words() []string {
	return strings.Fields(q.Text)
}

// Has reports whether the classifier attached the given category.
func (q *Query) Has(c Category) bool {
	for _, s := range q.Signals {
		if s.Category == c {
			return true
		}
	}
	return false
}

// Top returns the highest ranked signal, if any.
func (q *Query) Top() (Signal, bool) {
	if len(q.Signals) == 0 {
		return Signal{}, false
	}
	return q.Signals[0], true
}

// Response is what the orchestrator hands back to a transport.
type Response struct {
	SessionID      string          `json:"sessionId"`
	Handler        string          `json:"handler"`
	Category       string          `json:"category,omitempty"`
	Kind           OutcomeKind     `json:"kind"`
	ResponseText   string          `json:"responseText"`
	Payload        interface{}     `json:"structuredPayload,omitempty"`
	ResolvedEntity *ResolvedEntity `json:"resolvedEntity,omitempty"`
	Candidates     []Record        `json:"candidates,omitempty"`
	MissingField   string          `json:"missingField,omitempty"`
	Trace          []State         `json:"trace,omitempty"`
}
