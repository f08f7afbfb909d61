// Package dispatch routes each query to exactly one capability handler in
// strict priority order and drives the handler lifecycle, the shared context
// handoff and the session transcript around it.
package dispatch

import (
	"context"
	"fmt"
	"sort"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/models"
)

// Handler is one capability. Matches must be a pure function of the query and
// the context snapshot; all side effects belong in Handle.
type Handler interface {
	Name() string
	Rank() int
	Matches(q *models.Query, snap models.SharedContext) bool
	Handle(ctx context.Context, q *models.Query, turn *Turn) (*models.Outcome, error)
}

// HandlerInfo describes a registered handler.
type HandlerInfo struct {
	Name    string `json:"name"`
	Rank    int    `json:"rank"`
	Default bool   `json:"default"`
}

// Registry is the immutable, rank-ordered handler set.
type Registry struct {
	handlers []Handler
	fallback Handler
}

// NewRegistry validates and orders handlers by ascending rank. Ranks and
// names must be unique. fallback answers queries no handler matches; it may
// also appear in handlers, and may be nil.
func NewRegistry(fallback Handler, handlers ...Handler) (*Registry, error) {
	byRank := make(map[int]string, len(handlers))
	byName := make(map[string]bool, len(handlers))
	ordered := make([]Handler, 0, len(handlers))

	for i, h := range handlers {
		if h == nil {
			return nil, apperrors.NewInvalidHandlerError(fmt.Sprintf("handler %d is nil", i))
		}
		if h.Name() == "" {
			return nil, apperrors.NewInvalidHandlerError(fmt.Sprintf("handler %d has no name", i))
		}
		if byName[h.Name()] {
			return nil, apperrors.NewInvalidHandlerError(fmt.Sprintf("handler name %q registered twice", h.Name()))
		}
		if other, dup := byRank[h.Rank()]; dup {
			return nil, apperrors.NewDuplicatePriorityError(h.Rank(), other, h.Name())
		}
		byName[h.Name()] = true
		byRank[h.Rank()] = h.Name()
		ordered = append(ordered, h)
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank() < ordered[j].Rank() })
	return &Registry{handlers: ordered, fallback: fallback}, nil
}

// Select returns the first handler in rank order whose Matches holds, else
// the fallback. ok is false only when nothing matched and there is no fallback.
func (r *Registry) Select(q *models.Query, snap models.SharedContext) (h Handler, ok bool) {
	for _, h := range r.handlers {
		if h.Matches(q, snap) {
			return h, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Handlers lists the registered handlers in rank order.
func (r *Registry) Handlers() []HandlerInfo {
	out := make([]HandlerInfo, 0, len(r.handlers)+1)
	fallbackListed := false
	for _, h := range r.handlers {
		isDefault := r.fallback != nil && h.Name() == r.fallback.Name()
		fallbackListed = fallbackListed || isDefault
		out = append(out, HandlerInfo{Name: h.Name(), Rank: h.Rank(), Default: isDefault})
	}
	if r.fallback != nil && !fallbackListed {
		out = append(out, HandlerInfo{Name: r.fallback.Name(), Rank: r.fallback.Rank(), Default: true})
	}
	return out
}
