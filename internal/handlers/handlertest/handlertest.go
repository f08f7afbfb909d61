// Package handlertest provides fixtures for capability handler tests.
package handlertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	recsrc "orqon-dispatch/internal/collaborators/records"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
	"orqon-dispatch/internal/session"
)

const SessionID = "session-1"

// Records returns a small blotter: two clients named Maria, one without an
// email, and one client under compliance review.
func Records() []models.Record {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 15, 0, 0, 0, time.UTC) }
	return []models.Record{
		{
			Key: "acct:acc-1", FullName: "Maria Lopez", Email: "maria@example.com", Account: "ACC-1",
			FollowUpDate: "2025-03-20", Stage: "Active",
			Trades: []models.Trade{
				{TicketID: "TKT-0001", Side: "BUY", Ticker: "AAPL", Quantity: 50, Price: 180.5, Solicited: true, Timestamp: day(1)},
				{TicketID: "TKT-0002", Side: "SELL", Ticker: "TSLA", Quantity: 20, Solicited: false, Timestamp: day(3)},
			},
		},
		{
			Key: "acct:acc-2", FullName: "Maria Chen", Email: "mchen@example.com", Account: "ACC-2",
		},
		{
			Key: "acct:acc-3", FullName: "Wei Zhang", Account: "ACC-3", Stage: "Compliance Review", MeetingNeeded: true,
			Trades: []models.Trade{
				{TicketID: "TKT-0003", Side: "BUY", Ticker: "NVDA", Quantity: 500, Solicited: false, Timestamp: day(2), Stage: "Compliance Review", MeetingNeeded: true},
				{TicketID: "TKT-0004", Side: "BUY", Ticker: "PLTR", Quantity: 300, Solicited: false, Timestamp: day(4), MeetingNeeded: true},
				{TicketID: "TKT-0005", Side: "SELL", Ticker: "NVDA", Quantity: 100, Solicited: true, Timestamp: day(5), MeetingNeeded: true},
			},
		},
	}
}

// Env is one handler turn wired to in-memory collaborators.
type Env struct {
	Turn   *dispatch.Turn
	Source *recsrc.StaticSource
	Buffer *session.MemoryStore
}

// NewEnv builds a turn over Records with an exact and partial resolver.
func NewEnv(t *testing.T, snap models.SharedContext) *Env {
	t.Helper()
	src := recsrc.NewStaticSource(Records()...)
	buf := session.NewMemoryStore(session.DefaultBufferCap, 10)
	res := resolver.New(nil, resolver.DefaultThreshold, logger.NewNoOpLogger())
	return &Env{
		Turn:   dispatch.NewTestTurn(SessionID, snap, res, src, buf),
		Source: src,
		Buffer: buf,
	}
}

// Handoff returns a snapshot whose last resolved entity is the named record.
func Handoff(t *testing.T, name string) models.SharedContext {
	t.Helper()
	for _, r := range Records() {
		if r.FullName == name {
			return models.SharedContext{
				LastResolvedEntity: &models.ResolvedEntity{Record: r, MatchKind: models.MatchExact, Confidence: 1},
				LastEntityName:     name,
			}
		}
	}
	t.Fatalf("no record named %q", name)
	return models.SharedContext{}
}

// Query classifies text with the keyword classifier, after alias rewriting.
func Query(t *testing.T, text string) *models.Query {
	t.Helper()
	rewritten := intent.ApplyAliases(text)
	signals, err := intent.NewKeywordClassifier().Classify(context.Background(), rewritten)
	require.NoError(t, err)
	return &models.Query{Text: rewritten, Original: text, SessionID: SessionID, Signals: signals, ReceivedAt: time.Now()}
}
