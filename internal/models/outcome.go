// internal/models/outcome.go
package models

// OutcomeKind classifies how a handler terminated.
type OutcomeKind string

const (
	OutcomeAnswer         OutcomeKind = "answer"
	OutcomeDisambiguation OutcomeKind = "disambiguation"
	OutcomeNotFound       OutcomeKind = "not_found"
	OutcomeApology        OutcomeKind = "apology"
	OutcomeRejected       OutcomeKind = "rejected"
)

// State is a step of the per-query handler lifecycle.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateRouted           State = "ROUTED"
	StateEntityResolution State = "ENTITY_RESOLUTION"
	StateHandoffRead      State = "HANDOFF_READ"
	StateExecuting        State = "EXECUTING"
	StateHandoffWrite     State = "HANDOFF_WRITE"
	StateResponded        State = "RESPONDED"
	StateError            State = "ERROR"
)

// Outcome is the result of one handler invocation.
type Outcome struct {
	Handler        string          `json:"handler"`
	Category       string          `json:"category,omitempty"`
	Kind           OutcomeKind     `json:"kind"`
	ResponseText   string          `json:"responseText"`
	Payload        interface{}     `json:"structuredPayload,omitempty"`
	ResolvedEntity *ResolvedEntity `json:"resolvedEntity,omitempty"`
	Trace          []State         `json:"trace,omitempty"`

	// MissingField is set on not_found outcomes caused by an absent record field.
	MissingField string `json:"missingField,omitempty"`
	// Candidates is set on disambiguation outcomes.
	Candidates []Record `json:"candidates,omitempty"`
}

// Answer builds a plain answer outcome.
func Answer(handler, category, text string, payload interface{}) *Outcome {
	return &Outcome{
		Handler:      handler,
		Category:     category,
		Kind:         OutcomeAnswer,
		ResponseText: text,
		Payload:      payload,
	}
}

// Response converts the outcome into a transport response.
func (o *Outcome) Response(sessionID string) *Response {
	return &Response{
		SessionID:      sessionID,
		Handler:        o.Handler,
		Category:       o.Category,
		Kind:           o.Kind,
		ResponseText:   o.ResponseText,
		Payload:        o.Payload,
		ResolvedEntity: o.ResolvedEntity,
		Candidates:     o.Candidates,
		MissingField:   o.MissingField,
		Trace:          o.Trace,
	}
}
