// Package session holds the per-session shared context and transcript buffer.
package session

import (
	"context"

	"orqon-dispatch/internal/models"
)

// DefaultBufferCap is the number of transcript entries kept per session.
const DefaultBufferCap = 50

// ContextStore keeps the "last known answer" of each session. Fields are
// last-write-wins; a field absent from an update is left untouched.
type ContextStore interface {
	Get(ctx context.Context, sessionID string) (models.SharedContext, error)
	Update(ctx context.Context, sessionID string, update models.ContextUpdate) error
	Forget(ctx context.Context, sessionID string) error
}

// BufferStore keeps a bounded FIFO transcript per session.
type BufferStore interface {
	Append(ctx context.Context, sessionID string, entry models.SessionEntry) error
	// Recent returns up to n entries, oldest first. n <= 0 returns none.
	Recent(ctx context.Context, sessionID string, n int) ([]models.SessionEntry, error)
	Len(ctx context.Context, sessionID string) (int, error)
}

// Forgetter is implemented by buffer stores that can drop a session.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string) error
}
