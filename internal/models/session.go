package models

import "time"

// Role identifies the author of a session buffer entry.
type Role string

const (
	RoleUser    Role = "USER"
	RoleHandler Role = "HANDLER"
)

// SessionEntry is one line of a session transcript.
type SessionEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedContext is the "last known answer" state of one session.
type SharedContext struct {
	LastResolvedEntity *ResolvedEntity `json:"lastResolvedEntity,omitempty"`
	LastHandlerOutcome *Outcome        `json:"lastHandlerOutcome,omitempty"`
	LastEntityName     string          `json:"lastEntityName,omitempty"`
	UpdatedAt          time.Time       `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether nothing has been written for the session yet.
func (c SharedContext) IsEmpty() bool {
	return c.LastResolvedEntity == nil && c.LastHandlerOutcome == nil && c.LastEntityName == ""
}

// ContextUpdate carries the fields a handler produced. Nil fields are left
// untouched; set fields replace the stored value.
type ContextUpdate struct {
	ResolvedEntity *ResolvedEntity `json:"resolvedEntity,omitempty"`
	Outcome        *Outcome        `json:"outcome,omitempty"`
	EntityName     *string         `json:"entityName,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ContextUpdate) IsEmpty() bool {
	return u.ResolvedEntity == nil && u.Outcome == nil && u.EntityName == nil
}

// Apply returns c with the update's set fields replaced.
func (c SharedContext) Apply(u ContextUpdate, now time.Time) SharedContext {
	if u.ResolvedEntity != nil {
		e := *u.ResolvedEntity
		c.LastResolvedEntity = &e
	}
	if u.Outcome != nil {
		o := *u.Outcome
		c.LastHandlerOutcome = &o
	}
	if u.EntityName != nil {
		c.LastEntityName = *u.EntityName
	}
	if !u.IsEmpty() {
		c.UpdatedAt = now
	}
	return c
}

// Resolution builds an update that records a resolved entity and its name.
func Resolution(e *ResolvedEntity) ContextUpdate {
	name := e.Record.FullName
	return ContextUpdate{ResolvedEntity: e, EntityName: &name}
}
