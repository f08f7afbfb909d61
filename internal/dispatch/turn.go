package dispatch

import (
	"context"
	"sync"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
	"orqon-dispatch/internal/session"
)

// RecordSource lists every client record.
type RecordSource interface {
	List(ctx context.Context) ([]models.Record, error)
}

// EntityResolver turns a name fragment into at most one record.
type EntityResolver interface {
	Resolve(ctx context.Context, fragment string, records []models.Record) (*resolver.Result, error)
}

// Turn is the handler's view of one dispatch. It carries the context snapshot
// taken before routing, moves the lifecycle as the handler works, and stages
// context fields that the dispatcher commits only if the handler succeeds.
type Turn struct {
	sessionID string
	snapshot  models.SharedContext
	lifecycle *Lifecycle
	resolver  EntityResolver
	records   RecordSource
	buffer    session.BufferStore

	mu        sync.Mutex
	staged    models.ContextUpdate
	handedOff *models.ResolvedEntity
}

func newTurn(sessionID string, snap models.SharedContext, lc *Lifecycle, res EntityResolver, recs RecordSource, buf session.BufferStore) *Turn {
	return &Turn{
		sessionID: sessionID,
		snapshot:  snap,
		lifecycle: lc,
		resolver:  res,
		records:   recs,
		buffer:    buf,
	}
}

// NewTestTurn builds a detached turn for exercising a handler directly.
func NewTestTurn(sessionID string, snap models.SharedContext, res EntityResolver, recs RecordSource, buf session.BufferStore) *Turn {
	lc := NewLifecycle()
	_ = lc.Advance(models.StateRouted)
	return newTurn(sessionID, snap, lc, res, recs, buf)
}

func (t *Turn) SessionID() string {
	return t.sessionID
}

// Snapshot returns the shared context as it was when the query arrived.
// Peeking does not move the lifecycle.
func (t *Turn) Snapshot() models.SharedContext {
	return t.snapshot
}

// Handoff returns the entity another handler resolved earlier in the session
// and marks the turn as a handoff read. It returns nil when there is none.
func (t *Turn) Handoff() *models.ResolvedEntity {
	if t.snapshot.LastResolvedEntity == nil {
		return nil
	}
	_ = t.lifecycle.Advance(models.StateHandoffRead)
	e := *t.snapshot.LastResolvedEntity
	t.mu.Lock()
	t.handedOff = &e
	t.mu.Unlock()
	return &e
}

// Records lists all client records, retrying a failed read once.
func (t *Turn) Records(ctx context.Context) ([]models.Record, error) {
	if t.records == nil {
		return nil, nil
	}
	var recs []models.Record
	err := apperrors.RetryOnce(ctx, func(ctx context.Context) error {
		var lerr error
		recs, lerr = t.records.List(ctx)
		if lerr != nil {
			if _, ok := apperrors.AsStandard(lerr); ok {
				return lerr
			}
			return apperrors.NewRecordSourceError(lerr)
		}
		return nil
	})
	return recs, err
}

// Resolve runs entity resolution for fragment. A resolved entity is staged
// for the shared context, replacing any earlier resolution.
func (t *Turn) Resolve(ctx context.Context, fragment string) (*resolver.Result, error) {
	_ = t.lifecycle.Advance(models.StateEntityResolution)

	recs, err := t.Records(ctx)
	if err != nil {
		return nil, err
	}
	if t.resolver == nil {
		return &resolver.Result{Kind: resolver.NotFound, Stage: resolver.StageNone}, nil
	}

	res, err := t.resolver.Resolve(ctx, fragment, recs)
	if err != nil {
		return nil, err
	}
	if res.Kind == resolver.Resolved && res.Entity != nil {
		t.Stage(models.Resolution(res.Entity))
	}
	return res, nil
}

// Execute marks the start of the handler's main work.
func (t *Turn) Execute() {
	_ = t.lifecycle.Advance(models.StateExecuting)
}

// Stage merges u into the pending context update. Later set fields win.
func (t *Turn) Stage(u models.ContextUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u.ResolvedEntity != nil {
		t.staged.ResolvedEntity = u.ResolvedEntity
	}
	if u.Outcome != nil {
		t.staged.Outcome = u.Outcome
	}
	if u.EntityName != nil {
		t.staged.EntityName = u.EntityName
	}
}

// Staged returns the pending context update.
func (t *Turn) Staged() models.ContextUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.staged
}

// Entity returns the entity this turn acted on: the one it resolved, else the
// one it read from the handoff.
func (t *Turn) Entity() *models.ResolvedEntity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.staged.ResolvedEntity != nil {
		e := *t.staged.ResolvedEntity
		return &e
	}
	if t.handedOff != nil {
		e := *t.handedOff
		return &e
	}
	return nil
}

// Recent returns up to n transcript entries of the session, oldest first.
func (t *Turn) Recent(ctx context.Context, n int) ([]models.SessionEntry, error) {
	if t.buffer == nil {
		return nil, nil
	}
	return t.buffer.Recent(ctx, t.sessionID, n)
}

// State returns the current lifecycle state.
func (t *Turn) State() models.State {
	return t.lifecycle.Current()
}
