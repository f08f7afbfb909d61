package records

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/common/database"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/models"
)

// ==========================
// Test Helpers
// ==========================

var blotterColumns = []string{
	"ticket_id", "client_name", "email", "account", "side", "ticker", "qty", "order_type",
	"price", "solicited", "traded_at", "notes", "follow_up_date", "stage", "meeting_needed",
}

func newMockPostgres(t *testing.T) (*PostgresSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSource(database.WrapPostgres(db)), mock
}

type countingSource struct {
	recs  []models.Record
	err   error
	calls int
}

func (c *countingSource) List(context.Context) ([]models.Record, error) {
	c.calls++
	return c.recs, c.err
}

// ==========================
// Aggregation Tests
// ==========================

func TestAggregate(t *testing.T) {
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tickets := []models.TradeTicket{
		{ClientName: "Maria Lopez", Email: "maria@example.com", Account: "A-1", Trade: models.Trade{TicketID: "T1", Ticker: "AAPL", Timestamp: day}},
		{ClientName: "Maria  Lopez", Account: "A-1", Trade: models.Trade{TicketID: "T2", Ticker: "TSLA", Timestamp: day.Add(time.Hour), Stage: "Compliance Review"}},
		{ClientName: "Maria Lopez", Account: "B-7", Trade: models.Trade{TicketID: "T3", Ticker: "MSFT", Timestamp: day}},
		{ClientName: "Wei Zhang", Trade: models.Trade{TicketID: "T4", Ticker: "NVDA", Timestamp: day}},
		{ClientName: "  ", Trade: models.Trade{TicketID: "T5"}},
	}

	recs := Aggregate(nil, tickets)
	require.Len(t, recs, 3)

	assert.Equal(t, "acct:a-1", recs[0].Key)
	assert.Equal(t, "maria@example.com", recs[0].Email)
	assert.Equal(t, "Compliance Review", recs[0].Stage)
	assert.Len(t, recs[0].Trades, 2)
	assert.Equal(t, "TSLA", recs[0].Ticker())

	assert.Equal(t, "acct:b-7", recs[1].Key)
	assert.Equal(t, "Maria Lopez", recs[1].FullName)

	assert.Equal(t, "name:wei zhang", recs[2].Key)
}

func TestStaticSource_InsertTrades(t *testing.T) {
	src := NewStaticSource(models.Record{Key: RecordKey("Ana Ruiz", ""), FullName: "Ana Ruiz"})
	err := src.InsertTrades(context.Background(), []models.TradeTicket{
		{ClientName: "ana ruiz", Trade: models.Trade{TicketID: "T1", Ticker: "DAL"}},
	})
	require.NoError(t, err)

	recs, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Trades, 1)
}

// ==========================
// Postgres Tests
// ==========================

func TestPostgresSource_List(t *testing.T) {
	src, mock := newMockPostgres(t)
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows(blotterColumns).
		AddRow("T1", "Maria Lopez", "maria@example.com", "A-1", "Buy", "AAPL", 200, "Market", 187.5, false, at, nil, "2025-03-10", "Open", true).
		AddRow("T2", "Maria Lopez", nil, "A-1", "Sell", "TSLA", 50, nil, nil, true, at.Add(time.Hour), "rebalance", nil, nil, false)
	mock.ExpectQuery(regexp.QuoteMeta(listBlotterSQL)).WillReturnRows(rows)

	recs, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "maria@example.com", recs[0].Email)
	assert.Equal(t, "2025-03-10", recs[0].FollowUpDate)
	assert.True(t, recs[0].MeetingNeeded)
	require.Len(t, recs[0].Trades, 2)
	assert.False(t, recs[0].Trades[0].Solicited)
	assert.Equal(t, 187.5, recs[0].Trades[0].Price)
	assert.Equal(t, "rebalance", recs[0].Trades[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_ListFailure(t *testing.T) {
	src, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(listBlotterSQL)).WillReturnError(errors.New("connection reset"))

	_, err := src.List(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordSourceFailed))
}

func TestPostgresSource_InsertTrades(t *testing.T) {
	src, mock := newMockPostgres(t)
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	tickets := []models.TradeTicket{
		{ClientName: "Maria Lopez", Trade: models.Trade{TicketID: "TKT-1", Side: "Buy", Ticker: "AAPL", Quantity: 10, Timestamp: at}},
		{ClientName: "Wei Zhang", Trade: models.Trade{TicketID: "TKT-2", Side: "Sell", Ticker: "NVDA", Quantity: 5, Timestamp: at}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertTradeSQL))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, src.InsertTrades(context.Background(), tickets))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_InsertTradesRollsBack(t *testing.T) {
	src, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(insertTradeSQL)).ExpectExec().WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := src.InsertTrades(context.Background(), []models.TradeTicket{{ClientName: "Maria Lopez", Trade: models.Trade{TicketID: "TKT-1"}}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordSourceFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Cache Tests
// ==========================

func TestCachedSource_ReadThroughAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	inner := &countingSource{recs: []models.Record{{Key: "c1", FullName: "Maria Lopez"}}}
	c := NewCachedSource(inner, database.WrapRedis(rdb), "orqon", time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		recs, err := c.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	}
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mr.Exists("orqon:records:all"))

	mr.FastForward(2 * time.Minute)
	_, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	c.Invalidate(ctx)
	assert.False(t, mr.Exists("orqon:records:all"))
}

func TestCachedSource_RedisDownFallsThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet("orqon:records:all").SetErr(errors.New("dial tcp: connection refused"))

	inner := &countingSource{recs: []models.Record{{Key: "c1", FullName: "Maria Lopez"}}}
	c := NewCachedSource(inner, database.WrapRedis(rdb), "orqon", time.Minute, logger.NewNoOpLogger())

	recs, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedSource_InnerErrorSurfaces(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	inner := &countingSource{err: apperrors.NewRecordSourceError(errors.New("db down"))}
	c := NewCachedSource(inner, database.WrapRedis(rdb), "orqon", time.Minute, logger.NewNoOpLogger())

	_, err := c.List(context.Background())
	require.Error(t, err)
	assert.False(t, mr.Exists("orqon:records:all"))
}
