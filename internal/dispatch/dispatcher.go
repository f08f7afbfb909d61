package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/common/observability"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/session"
)

const (
	DefaultMaxQueryLength = 4000
	DefaultHandlerTimeout = 30 * time.Second
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Deps are the collaborators of a Dispatcher. Registry, Classifier, Contexts
// and Logger are required.
type Deps struct {
	Registry      *Registry
	Classifier    intent.Classifier
	Contexts      session.ContextStore
	Buffer        session.BufferStore
	Resolver      EntityResolver
	Records       RecordSource
	Observability *observability.Observability
	Logger        Logger
}

// Config tunes request validation and handler deadlines. TurnTimeout bounds
// the wait for an earlier query of the same session; zero waits for ctx only.
type Config struct {
	MaxQueryLength int
	DefaultTimeout time.Duration
	TurnTimeout    time.Duration
	Timeouts       map[string]time.Duration
}

// Dispatcher processes queries one at a time per session. Different sessions
// proceed in parallel; there is no global lock.
type Dispatcher struct {
	registry   *Registry
	classifier intent.Classifier
	contexts   session.ContextStore
	buffer     session.BufferStore
	resolver   EntityResolver
	records    RecordSource
	obs        *observability.Observability
	logger     Logger
	errors     *apperrors.ErrorHandler
	cfg        Config
	gates      *sessionGates
	now        func() time.Time
}

type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(deps Deps, cfg Config, opts ...Option) (*Dispatcher, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("dispatcher: registry is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("dispatcher: classifier is required")
	case deps.Contexts == nil:
		return nil, fmt.Errorf("dispatcher: context store is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("dispatcher: logger is required")
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultHandlerTimeout
	}
	obs := deps.Observability
	if obs == nil {
		obs = observability.NewNoop()
	}

	d := &Dispatcher{
		registry:   deps.Registry,
		classifier: deps.Classifier,
		contexts:   deps.Contexts,
		buffer:     deps.Buffer,
		resolver:   deps.Resolver,
		records:    deps.Records,
		obs:        obs,
		logger:     deps.Logger,
		errors:     apperrors.NewErrorHandler(deps.Logger),
		cfg:        cfg,
		gates:      newSessionGates(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Process runs one query through routing and the selected handler and
// returns exactly one response. Handler failures come back as an apology
// response with a nil error. A non-nil error means the query was not
// handled at all (invalid input, nothing to route to, or ctx ended while
// waiting for the session); the response then still carries the text to
// show.
func (d *Dispatcher) Process(ctx context.Context, text, sessionID string) (*models.Response, error) {
	start := d.now()
	q := &models.Query{
		Text:       strings.TrimSpace(text),
		SessionID:  strings.TrimSpace(sessionID),
		ReceivedAt: start,
		Original:   text,
	}
	lc := NewLifecycle()

	if verr := d.validate(q); verr != nil {
		metrics.QueriesFailed.WithLabelValues("none", string(verr.Code)).Inc()
		d.logger.Debug("query rejected", map[string]interface{}{"sessionId": q.SessionID, "details": verr.Details})
		rejected := &models.Outcome{Kind: models.OutcomeRejected, ResponseText: apperrors.UserMessage(verr), Trace: lc.Trace()}
		return rejected.Response(q.SessionID), verr
	}

	gateCtx, cancelGate := ctx, context.CancelFunc(func() {})
	if d.cfg.TurnTimeout > 0 {
		gateCtx, cancelGate = context.WithTimeout(ctx, d.cfg.TurnTimeout)
	}
	release, err := d.gates.acquire(gateCtx, q.SessionID)
	cancelGate()
	if err != nil {
		busy := apperrors.NewSessionBusyError(q.SessionID, err)
		_, msg := d.errors.Handle(busy, map[string]interface{}{"sessionId": q.SessionID})
		metrics.QueriesFailed.WithLabelValues("none", string(busy.Code)).Inc()
		apology := &models.Outcome{Kind: models.OutcomeApology, ResponseText: msg, Trace: lc.Trace()}
		return apology.Response(q.SessionID), busy
	}
	defer release()

	ctx, span := d.obs.StartSpan(ctx, "dispatch.process", attribute.String("session.id", q.SessionID))
	defer span.End()

	snap, err := d.contexts.Get(ctx, q.SessionID)
	if err != nil {
		d.logger.Warn("shared context unavailable, continuing without it", map[string]interface{}{
			"sessionId": q.SessionID,
			"error":     err.Error(),
		})
		snap = models.SharedContext{}
	}

	q.Text = intent.ApplyAliases(RewritePronouns(q.Text, snap.LastEntityName))
	signals, err := d.classifier.Classify(ctx, q.Text)
	if err != nil {
		d.logger.Warn("classifier failed, routing without signals", map[string]interface{}{"error": err.Error()})
	}
	q.Signals = signals

	var (
		outcome *models.Outcome
		procErr error
	)
	h, ok := d.registry.Select(q, snap)
	if !ok {
		rerr := apperrors.NewRoutingExhaustedError("no handler matched and no default is registered")
		_, msg := d.errors.Handle(rerr, map[string]interface{}{"sessionId": q.SessionID})
		metrics.QueriesFailed.WithLabelValues("none", string(rerr.Code)).Inc()
		outcome = &models.Outcome{Kind: models.OutcomeApology, ResponseText: msg, Trace: lc.Trace()}
		procErr = rerr
	} else {
		_ = lc.Advance(models.StateRouted)
		d.logger.Debug("query routed", map[string]interface{}{
			"sessionId": q.SessionID,
			"handler":   h.Name(),
			"signals":   len(q.Signals),
		})
		outcome = d.run(ctx, h, q, snap, lc)
	}

	d.appendTranscript(ctx, q, outcome)
	d.observe(ctx, span, outcome, start)
	return outcome.Response(q.SessionID), procErr
}

func (d *Dispatcher) validate(q *models.Query) *apperrors.StandardError {
	switch {
	case q.SessionID == "":
		return apperrors.NewValidationError("session id is required")
	case q.Text == "":
		return apperrors.NewValidationError("query text is empty")
	case utf8.RuneCountInString(q.Text) > d.cfg.MaxQueryLength:
		return apperrors.NewValidationError(fmt.Sprintf("query text exceeds %d characters", d.cfg.MaxQueryLength))
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, h Handler, q *models.Query, snap models.SharedContext, lc *Lifecycle) *models.Outcome {
	turn := newTurn(q.SessionID, snap, lc, d.resolver, d.records, d.buffer)

	hctx, cancel := context.WithTimeout(ctx, d.timeoutFor(h.Name()))
	outcome, err := d.invoke(hctx, h, q, turn)
	cancel()

	if err == nil && outcome == nil {
		err = apperrors.NewInternalError(fmt.Errorf("handler %s returned no outcome", h.Name()))
	}
	if err == nil {
		if lerr := lc.Err(); lerr != nil {
			err = apperrors.NewInternalError(lerr)
		}
	}
	if err != nil {
		return d.fail(h, q, lc, err)
	}

	if outcome.Handler == "" {
		outcome.Handler = h.Name()
	}
	if outcome.Category == "" {
		if top, ok := q.Top(); ok {
			outcome.Category = string(top.Category)
		}
	}

	if outcome.ResolvedEntity == nil && outcome.Kind != models.OutcomeDisambiguation {
		outcome.ResolvedEntity = turn.Entity()
	}

	_ = lc.Advance(models.StateExecuting)
	_ = lc.Advance(models.StateHandoffWrite)

	update := turn.Staged()
	committed := *outcome
	committed.Trace = nil
	update.Outcome = &committed
	if uerr := d.contexts.Update(ctx, q.SessionID, update); uerr != nil {
		d.logger.Warn("shared context commit failed", map[string]interface{}{
			"sessionId": q.SessionID,
			"handler":   h.Name(),
			"error":     uerr.Error(),
		})
	}

	_ = lc.Advance(models.StateResponded)
	outcome.Trace = lc.Trace()
	return outcome
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, q *models.Query, turn *Turn) (out *models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apperrors.NewInternalError(fmt.Errorf("handler %s panicked: %v", h.Name(), r))
		}
	}()
	return h.Handle(ctx, q, turn)
}

// fail turns a handler error into an apology. Lower-ranked handlers are not
// tried and nothing is committed to the shared context.
func (d *Dispatcher) fail(h Handler, q *models.Query, lc *Lifecycle, err error) *models.Outcome {
	if _, ok := apperrors.AsStandard(err); !ok &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = apperrors.NewUpstreamError(h.Name(), "handle", err)
	}
	lc.Fail()

	stdErr, msg := d.errors.Handle(err, map[string]interface{}{
		"handler":   h.Name(),
		"sessionId": q.SessionID,
	})
	metrics.QueriesFailed.WithLabelValues(h.Name(), string(stdErr.Code)).Inc()

	out := &models.Outcome{
		Handler:      h.Name(),
		Kind:         models.OutcomeApology,
		ResponseText: msg,
		Trace:        lc.Trace(),
	}
	if top, ok := q.Top(); ok {
		out.Category = string(top.Category)
	}
	return out
}

func (d *Dispatcher) timeoutFor(handler string) time.Duration {
	if t, ok := d.cfg.Timeouts[handler]; ok && t > 0 {
		return t
	}
	return d.cfg.DefaultTimeout
}

func (d *Dispatcher) appendTranscript(ctx context.Context, q *models.Query, outcome *models.Outcome) {
	if d.buffer == nil {
		return
	}
	entries := []models.SessionEntry{
		{Role: models.RoleUser, Content: q.Original, Timestamp: q.ReceivedAt},
		{Role: models.RoleHandler, Content: outcome.ResponseText, Timestamp: d.now()},
	}
	for _, e := range entries {
		if err := d.buffer.Append(ctx, q.SessionID, e); err != nil {
			d.logger.Warn("session buffer append failed", map[string]interface{}{
				"sessionId": q.SessionID,
				"error":     err.Error(),
			})
			return
		}
	}
}

func (d *Dispatcher) observe(ctx context.Context, span trace.Span, outcome *models.Outcome, start time.Time) {
	handler := outcome.Handler
	if handler == "" {
		handler = "none"
	}
	kind := string(outcome.Kind)
	elapsed := d.now().Sub(start)

	metrics.QueriesProcessed.WithLabelValues(handler, kind).Inc()
	metrics.QueryDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
	d.obs.RecordQueryProcessed(ctx, handler, kind)
	d.obs.RecordQueryDuration(ctx, elapsed, handler)

	span.SetAttributes(attribute.String("handler", handler), attribute.String("outcome.kind", kind))
	if outcome.Kind == models.OutcomeApology {
		span.SetStatus(codes.Error, "query answered with apology")
	}
}

// Handlers lists the registered handlers in rank order.
func (d *Dispatcher) Handlers() []HandlerInfo {
	return d.registry.Handlers()
}

// Snapshot returns the current shared context of a session.
func (d *Dispatcher) Snapshot(ctx context.Context, sessionID string) (models.SharedContext, error) {
	return d.contexts.Get(ctx, sessionID)
}

// History returns up to n transcript entries of a session, oldest first.
func (d *Dispatcher) History(ctx context.Context, sessionID string, n int) ([]models.SessionEntry, error) {
	if d.buffer == nil {
		return nil, nil
	}
	return d.buffer.Recent(ctx, sessionID, n)
}

// Forget drops all state of a session.
func (d *Dispatcher) Forget(ctx context.Context, sessionID string) error {
	release, err := d.gates.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := d.contexts.Forget(ctx, sessionID); err != nil {
		return err
	}
	if f, ok := d.buffer.(session.Forgetter); ok {
		return f.Forget(ctx, sessionID)
	}
	return nil
}

// sessionGates hands out one weight-1 semaphore per session. Entries are
// reference counted and removed when the last waiter leaves.
type sessionGates struct {
	mu    sync.Mutex
	gates map[string]*gate
}

type gate struct {
	sem  *semaphore.Weighted
	refs int
}

func newSessionGates() *sessionGates {
	return &sessionGates{gates: make(map[string]*gate)}
}

func (s *sessionGates) acquire(ctx context.Context, sessionID string) (func(), error) {
	s.mu.Lock()
	g, ok := s.gates[sessionID]
	if !ok {
		g = &gate{sem: semaphore.NewWeighted(1)}
		s.gates[sessionID] = g
	}
	g.refs++
	s.mu.Unlock()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		s.leave(sessionID, g)
		return nil, err
	}
	return func() {
		g.sem.Release(1)
		s.leave(sessionID, g)
	}, nil
}

func (s *sessionGates) leave(sessionID string, g *gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.refs--
	if g.refs == 0 {
		delete(s.gates, sessionID)
	}
}

func (s *sessionGates) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gates)
}
