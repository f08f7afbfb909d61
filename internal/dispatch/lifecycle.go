package dispatch

import (
	"fmt"
	"sync"

	"orqon-dispatch/internal/models"
)

var transitions = map[models.State][]models.State{
	models.StateReceived:         {models.StateRouted},
	models.StateRouted:           {models.StateEntityResolution, models.StateHandoffRead, models.StateExecuting},
	models.StateEntityResolution: {models.StateHandoffRead, models.StateExecuting, models.StateError},
	models.StateHandoffRead:      {models.StateExecuting},
	models.StateExecuting:        {models.StateHandoffWrite, models.StateError},
	models.StateHandoffWrite:     {models.StateResponded},
}

// Lifecycle tracks one query through the handler state machine. Re-entering
// the current state is a no-op. The first illegal transition is kept and
// later transitions are ignored.
type Lifecycle struct {
	mu      sync.Mutex
	current models.State
	trace   []models.State
	err     error
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{current: models.StateReceived, trace: []models.State{models.StateReceived}}
}

// Advance moves to next if the transition table allows it.
func (l *Lifecycle) Advance(next models.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}
	if next == l.current {
		return nil
	}
	for _, allowed := range transitions[l.current] {
		if allowed == next {
			l.current = next
			l.trace = append(l.trace, next)
			return nil
		}
	}
	l.err = fmt.Errorf("illegal lifecycle transition %s -> %s", l.current, next)
	return l.err
}

// Fail moves to ERROR, passing through EXECUTING when the failure happened
// before the handler reached it.
func (l *Lifecycle) Fail() {
	l.mu.Lock()
	cur := l.current
	l.err = nil
	l.mu.Unlock()

	switch cur {
	case models.StateEntityResolution, models.StateExecuting, models.StateError:
	default:
		_ = l.Advance(models.StateExecuting)
	}
	_ = l.Advance(models.StateError)
}

func (l *Lifecycle) Current() models.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *Lifecycle) Trace() []models.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.State, len(l.trace))
	copy(out, l.trace)
	return out
}

// Err returns the first illegal transition, if any.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
