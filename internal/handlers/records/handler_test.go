package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers/handlertest"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
)

func init() {
	apperrors.RetryBackoff = time.Millisecond
}

type failingSource struct{ calls int }

func (f *failingSource) List(context.Context) ([]models.Record, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(DefaultConfig(), logger.NewTestLogger(t))
}

// ==========================
// Matching Tests
// ==========================

func TestHandler_Matches(t *testing.T) {
	h := newTestHandler(t)
	tests := []struct {
		text string
		want bool
	}{
		{"what is the email of Maria Lopez", true},
		{"what's maria's email", true},
		{"show trades for Wei Zhang", true},
		{"show all clients", true},
		{"schedule a meeting with the client tomorrow", false},
		{"set a remainder to call the client", false},
		{"what is the churning risk for this client", false},
		{"price of apple", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Matches(handlertest.Query(t, tt.text), models.SharedContext{}))
		})
	}
}

// ==========================
// Email Lookup Tests
// ==========================

func TestHandler_EmailLookup(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		kind       models.OutcomeKind
		contains   string
		missing    string
		candidates int
	}{
		{name: "exact", text: "what is the email of Maria Lopez", kind: models.OutcomeAnswer, contains: "maria@example.com"},
		{name: "possessive", text: "what is Maria Lopez's email?", kind: models.OutcomeAnswer, contains: "maria@example.com"},
		{name: "missing email", text: "what is Wei Zhang's email", kind: models.OutcomeNotFound, contains: "Wei Zhang", missing: "email"},
		{name: "ambiguous", text: "email of maria", kind: models.OutcomeDisambiguation, contains: "Which one", candidates: 2},
		{name: "unknown", text: "what is the email of Bob Stone", kind: models.OutcomeNotFound, contains: `"Bob Stone"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := handlertest.NewEnv(t, models.SharedContext{})
			out, err := newTestHandler(t).Handle(context.Background(), handlertest.Query(t, tt.text), env.Turn)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Contains(t, out.ResponseText, tt.contains)
			assert.Equal(t, tt.missing, out.MissingField)
			assert.Len(t, out.Candidates, tt.candidates)
		})
	}
}

func TestHandler_EmailLookupStagesResolution(t *testing.T) {
	env := handlertest.NewEnv(t, models.SharedContext{})
	out, err := newTestHandler(t).Handle(context.Background(), handlertest.Query(t, "what is the email of Maria Lopez"), env.Turn)
	require.NoError(t, err)
	assert.Equal(t, EmailAnswer{Name: "Maria Lopez", Email: "maria@example.com"}, out.Payload)

	staged := env.Turn.Staged()
	require.NotNil(t, staged.ResolvedEntity)
	assert.Equal(t, models.MatchExact, staged.ResolvedEntity.MatchKind)
	assert.Equal(t, "Maria Lopez", *staged.EntityName)
	assert.Equal(t, models.StateExecuting, env.Turn.State())
}

// ==========================
// Table Tests
// ==========================

func TestHandler_ClientTableFromHandoff(t *testing.T) {
	env := handlertest.NewEnv(t, handlertest.Handoff(t, "Maria Lopez"))
	out, err := newTestHandler(t).Handle(context.Background(), handlertest.Query(t, "show trades for Maria Lopez"), env.Turn)
	require.NoError(t, err)

	table, ok := out.Payload.(Table)
	require.True(t, ok)
	assert.Equal(t, "Trades for Maria Lopez", table.Title)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "TKT-0002", table.Rows[0][0], "latest trade first")
	assert.Equal(t, "MKT", table.Rows[0][5])
	assert.Contains(t, out.ResponseText, "Latest: SELL 20 TSLA")
	assert.True(t, env.Turn.Staged().IsEmpty(), "handoff reads stage nothing")
}

func TestHandler_ClientTableResolved(t *testing.T) {
	env := handlertest.NewEnv(t, handlertest.Handoff(t, "Maria Lopez"))
	out, err := newTestHandler(t).Handle(context.Background(), handlertest.Query(t, "show trades for Wei"), env.Turn)
	require.NoError(t, err)

	table := out.Payload.(Table)
	assert.Equal(t, "Trades for Wei Zhang", table.Title)
	assert.Len(t, table.Rows, 3)
	assert.Equal(t, models.MatchPartial, env.Turn.Staged().ResolvedEntity.MatchKind)
}

func TestHandler_Overview(t *testing.T) {
	tests := []struct {
		name    string
		maxRows int
		rows    int
		footer  string
	}{
		{name: "all rows", maxRows: 20, rows: 3, footer: "3 clients"},
		{name: "truncated", maxRows: 2, rows: 2, footer: "Showing 2 of 3 clients"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&Config{Rank: 40, MaxRows: tt.maxRows}, logger.NewNoOpLogger())
			env := handlertest.NewEnv(t, models.SharedContext{})
			out, err := h.Handle(context.Background(), handlertest.Query(t, "show all clients"), env.Turn)
			require.NoError(t, err)

			table := out.Payload.(Table)
			assert.Len(t, table.Rows, tt.rows)
			assert.Equal(t, "Maria Chen", table.Rows[0][0])
			assert.Equal(t, tt.footer, table.Footer)
		})
	}
}

func TestHandler_RecordSourceFailure(t *testing.T) {
	src := &failingSource{}
	res := resolver.New(nil, resolver.DefaultThreshold, logger.NewNoOpLogger())
	turn := dispatch.NewTestTurn(handlertest.SessionID, models.SharedContext{}, res, src, nil)

	_, err := newTestHandler(t).Handle(context.Background(), handlertest.Query(t, "show trades for Wei Zhang"), turn)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordSourceFailed))
	assert.Equal(t, 2, src.calls, "reads are retried once")
}

func TestEmailFragment(t *testing.T) {
	tests := map[string]string{
		"what is the email of Maria Lopez":  "Maria Lopez",
		"show me maria lopez's email":       "maria lopez",
		"get the email address for Wei":     "Wei",
		"whats Wei Zhang's e-mail address?": "Wei Zhang",
		"email address please":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, emailFragment(in), in)
	}
}
