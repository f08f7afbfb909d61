package tradelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/collaborators/alerts"
	"orqon-dispatch/internal/collaborators/records"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/handlers/handlertest"
	"orqon-dispatch/internal/models"
)

var fixedNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Complete(ctx context.Context, prompt, in string) (string, error) {
	return s.CompleteJSON(ctx, prompt, in)
}

func (s *stubLLM) CompleteJSON(_ context.Context, prompt, _ string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type failingStore struct{ calls int }

func (f *failingStore) InsertTrades(context.Context, []models.TradeTicket) error {
	f.calls++
	return apperrors.NewRecordSourceError(errors.New("connection refused"))
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) ComplianceReview(context.Context, models.TradeTicket) error {
	f.calls++
	return apperrors.NewUpstreamError("alerts", "publish", errors.New("throttled"))
}

func newTestHandler(t *testing.T, provider *stubLLM, store records.TradeStore, notifier alerts.Notifier) *Handler {
	var h *Handler
	if provider == nil {
		h = NewHandler(DefaultConfig(), nil, store, notifier, logger.NewTestLogger(t))
	} else {
		h = NewHandler(DefaultConfig(), provider, store, notifier, logger.NewTestLogger(t))
	}
	h.now = func() time.Time { return fixedNow }
	return h
}

const weiReview = "```json\n" + `{"trades":[{"client_name":"Wei  Zhang","side":"buy","ticker":"nvda","quantity":200,
"price":null,"solicited":false,"stage":"Compliance Review","notes":"client called in"}]}` + "\n```"

// ==========================
// Matching Tests
// ==========================

func TestHandler_Matches(t *testing.T) {
	h := newTestHandler(t, &stubLLM{}, records.NewStaticSource(), &alerts.Recorder{})
	tests := []struct {
		text string
		want bool
	}{
		{"log trade: Wei Zhang bought 200 NVDA", true},
		{"client called, sell 1,500 TSLA for Maria Lopez", true},
		{"unsolicited market order for Wei", true},
		{"what is the price of nvidia", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Matches(handlertest.Query(t, tt.text), models.SharedContext{}))
		})
	}
}

// ==========================
// Logging Tests
// ==========================

func TestHandler_LogsTradeForKnownClient(t *testing.T) {
	var rec alerts.Recorder
	provider := &stubLLM{reply: weiReview}
	env := handlertest.NewEnv(t, models.SharedContext{})
	ctx := context.Background()

	out, err := newTestHandler(t, provider, env.Source, &rec).Handle(ctx,
		handlertest.Query(t, "client called, Wei Zhang bought 200 NVDA unsolicited, flag for compliance review"), env.Turn)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswer, out.Kind)

	logged := out.Payload.(Logged)
	require.Len(t, logged.Tickets, 1)
	ticket := logged.Tickets[0]
	assert.Regexp(t, `^TKT-[0-9A-F]{8}$`, ticket.TicketID)
	assert.Equal(t, "Wei Zhang", ticket.ClientName)
	assert.Equal(t, "ACC-3", ticket.Account, "account comes from the existing record")
	assert.Equal(t, "BUY", ticket.Side)
	assert.Equal(t, "NVDA", ticket.Ticker)
	assert.Equal(t, 200, ticket.Quantity)
	assert.Equal(t, "Market", ticket.OrderType)
	assert.False(t, ticket.Solicited)
	assert.Equal(t, fixedNow, ticket.Timestamp)

	assert.Equal(t, "Logged 1 trade: BUY 200 NVDA for Wei Zhang ("+ticket.TicketID+
		"). 1 flagged for compliance review; the compliance desk has been notified.", out.ResponseText)
	assert.Len(t, rec.Tickets(), 1)

	recs, err := env.Source.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Len(t, recs[2].Trades, 4)

	staged := env.Turn.Staged()
	require.NotNil(t, staged.ResolvedEntity)
	assert.Equal(t, "Wei Zhang", *staged.EntityName)
	assert.Len(t, staged.ResolvedEntity.Record.Trades, 4)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Today is 2025-03-10.")
}

func TestHandler_LogsSeveralClients(t *testing.T) {
	var rec alerts.Recorder
	provider := &stubLLM{reply: `{"trades":[
		{"ticket_id":"TKT-0100","client_name":"Maria Lopez","side":"SELL","ticker":"AAPL","quantity":10,"order_type":"Limit","price":190.25},
		{"client_name":"Omar Diaz","email":"omar@example.com","side":"Buy","ticker":"MSFT","quantity":5}
	]}`}
	env := handlertest.NewEnv(t, models.SharedContext{})
	ctx := context.Background()

	out, err := newTestHandler(t, provider, env.Source, &rec).Handle(ctx,
		handlertest.Query(t, "log trade: Maria Lopez sell 10 AAPL limit 190.25, Omar Diaz buy 5 MSFT"), env.Turn)
	require.NoError(t, err)

	logged := out.Payload.(Logged)
	require.Len(t, logged.Tickets, 2)
	assert.Equal(t, "TKT-0100", logged.Tickets[0].TicketID)
	assert.Equal(t, 190.25, logged.Tickets[0].Price)
	assert.Equal(t, "maria@example.com", logged.Tickets[0].Email)
	assert.True(t, logged.Tickets[1].Solicited, "solicited unless stated")
	assert.Equal(t, "Pending", logged.Tickets[1].Stage)
	assert.Zero(t, logged.ReviewAlerts)
	assert.Empty(t, rec.Tickets())

	recs, err := env.Source.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "Omar Diaz", recs[3].FullName)
	assert.True(t, env.Turn.Staged().IsEmpty(), "a multi-client log names no single client")
}

func TestHandler_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubLLM
	}{
		{name: "no text generation"},
		{name: "text generation fails", provider: &stubLLM{err: errors.New("timeout")}},
		{name: "not json", provider: &stubLLM{reply: "I can't help with that"}},
		{name: "missing ticker", provider: &stubLLM{reply: `{"trades":[{"client_name":"Wei Zhang","side":"BUY","quantity":5}]}`}},
		{name: "unknown side", provider: &stubLLM{reply: `{"trades":[{"client_name":"Wei Zhang","side":"HOLD","ticker":"NVDA","quantity":5}]}`}},
		{name: "no trades", provider: &stubLLM{reply: `{"trades":[]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &failingStore{}
			env := handlertest.NewEnv(t, models.SharedContext{})
			out, err := newTestHandler(t, tt.provider, store, &alerts.Recorder{}).Handle(context.Background(),
				handlertest.Query(t, "log trade for Wei Zhang"), env.Turn)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeRejected, out.Kind)
			assert.Contains(t, out.ResponseText, "could not parse")
			assert.Zero(t, store.calls)
		})
	}
}

func TestHandler_InsertFailureIsNotRetried(t *testing.T) {
	store := &failingStore{}
	notifier := &failingNotifier{}
	env := handlertest.NewEnv(t, models.SharedContext{})

	_, err := newTestHandler(t, &stubLLM{reply: weiReview}, store, notifier).Handle(context.Background(),
		handlertest.Query(t, "log trade for Wei Zhang"), env.Turn)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordSourceFailed))
	assert.Equal(t, 1, store.calls)
	assert.Zero(t, notifier.calls)
	assert.True(t, env.Turn.Staged().IsEmpty())
}

func TestHandler_AlertFailureKeepsTrade(t *testing.T) {
	notifier := &failingNotifier{}
	env := handlertest.NewEnv(t, models.SharedContext{})

	out, err := newTestHandler(t, &stubLLM{reply: weiReview}, env.Source, notifier).Handle(context.Background(),
		handlertest.Query(t, "log trade for Wei Zhang"), env.Turn)
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
	assert.Contains(t, out.ResponseText, "the compliance desk could not be notified about 1.")
	assert.Equal(t, 1, out.Payload.(Logged).AlertsFailed)
}

func TestNewTicketID(t *testing.T) {
	a, b := NewTicketID(), NewTicketID()
	assert.Regexp(t, `^TKT-[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}
