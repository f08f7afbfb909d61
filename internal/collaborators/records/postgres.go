package records

import (
	"context"
	"database/sql"
	"fmt"

	"orqon-dispatch/internal/common/database"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
)

const (
	listBlotterSQL = `SELECT ticket_id, client_name, email, account, side, ticker, qty, order_type, price, solicited, traded_at, notes, follow_up_date, stage, meeting_needed FROM blotter ORDER BY traded_at, ticket_id`

	insertTradeSQL = `INSERT INTO blotter (ticket_id, client_name, email, account, side, ticker, qty, order_type, price, solicited, traded_at, notes, follow_up_date, stage, meeting_needed) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
)

// PostgresSource reads client records from the trade blotter table and
// appends logged trades to it.
type PostgresSource struct {
	db *database.PostgresClient
}

func NewPostgresSource(db *database.PostgresClient) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) List(ctx context.Context) ([]models.Record, error) {
	rows, err := s.db.Query(ctx, listBlotterSQL)
	if err != nil {
		metrics.ObserveCall("postgres", err)
		return nil, apperrors.NewRecordSourceError(fmt.Errorf("query blotter: %w", err))
	}
	defer rows.Close()

	var tickets []models.TradeTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			metrics.ObserveCall("postgres", err)
			return nil, apperrors.NewRecordSourceError(fmt.Errorf("scan blotter row: %w", err))
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		metrics.ObserveCall("postgres", err)
		return nil, apperrors.NewRecordSourceError(fmt.Errorf("iterate blotter: %w", err))
	}

	metrics.ObserveCall("postgres", nil)
	return Aggregate(nil, tickets), nil
}

func scanTicket(rows *sql.Rows) (models.TradeTicket, error) {
	var (
		t                                models.TradeTicket
		email, account, orderType, notes sql.NullString
		followUp, stage                  sql.NullString
		price                            sql.NullFloat64
		solicited, meetingNeeded         sql.NullBool
		tradedAt                         sql.NullTime
	)
	err := rows.Scan(
		&t.TicketID, &t.ClientName, &email, &account, &t.Side, &t.Ticker, &t.Quantity,
		&orderType, &price, &solicited, &tradedAt, &notes, &followUp, &stage, &meetingNeeded,
	)
	if err != nil {
		return t, err
	}
	t.Email = email.String
	t.Account = account.String
	t.OrderType = orderType.String
	t.Price = price.Float64
	t.Solicited = solicited.Bool
	t.Timestamp = tradedAt.Time
	t.Notes = notes.String
	t.FollowUpDate = followUp.String
	t.Stage = stage.String
	t.MeetingNeeded = meetingNeeded.Bool
	return t, nil
}

// InsertTrades writes all tickets in one transaction. It is not retried.
func (s *PostgresSource) InsertTrades(ctx context.Context, tickets []models.TradeTicket) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertTradeSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range tickets {
			_, err := stmt.ExecContext(ctx,
				t.TicketID, t.ClientName, nullString(t.Email), nullString(t.Account), t.Side, t.Ticker,
				t.Quantity, nullString(t.OrderType), nullPrice(t.Price), t.Solicited, t.Timestamp,
				nullString(t.Notes), nullString(t.FollowUpDate), nullString(t.Stage), t.MeetingNeeded,
			)
			if err != nil {
				return fmt.Errorf("insert ticket %s: %w", t.TicketID, err)
			}
		}
		return nil
	})
	metrics.ObserveCall("postgres", err)
	if err != nil {
		return apperrors.NewRecordSourceError(err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPrice(p float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: p, Valid: p > 0}
}
