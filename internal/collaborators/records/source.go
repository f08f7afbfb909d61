// Package records provides the client record source: the trade blotter in
// Postgres, a Redis cache in front of it, and a static source for demos and
// tests.
package records

import (
	"context"
	"strings"
	"sync"

	"orqon-dispatch/internal/models"
)

// Source lists every client record.
type Source interface {
	List(ctx context.Context) ([]models.Record, error)
}

// TradeStore persists logged trades.
type TradeStore interface {
	InsertTrades(ctx context.Context, tickets []models.TradeTicket) error
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// StaticSource is an in-memory Source and TradeStore.
type StaticSource struct {
	mu      sync.RWMutex
	records []models.Record
}

func NewStaticSource(records ...models.Record) *StaticSource {
	return &StaticSource{records: append([]models.Record(nil), records...)}
}

func (s *StaticSource) List(context.Context) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// InsertTrades appends each ticket to its client's record, creating the
// record when the client is new.
func (s *StaticSource) InsertTrades(_ context.Context, tickets []models.TradeTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = Aggregate(s.records, tickets)
	return nil
}

// RecordKey derives the record key of a blotter row: the account number when
// present, otherwise the normalized client name.
func RecordKey(name, account string) string {
	if a := strings.TrimSpace(account); a != "" {
		return "acct:" + strings.ToLower(a)
	}
	return "name:" + strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Aggregate folds blotter rows into client records, preserving first-seen
// order. Later rows overwrite the client's follow-up fields.
func Aggregate(records []models.Record, tickets []models.TradeTicket) []models.Record {
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.Key] = i
	}

	for _, t := range tickets {
		if strings.TrimSpace(t.ClientName) == "" {
			continue
		}
		key := RecordKey(t.ClientName, t.Account)
		i, ok := index[key]
		if !ok {
			records = append(records, models.Record{
				Key:      key,
				FullName: strings.TrimSpace(t.ClientName),
				Account:  strings.TrimSpace(t.Account),
			})
			i = len(records) - 1
			index[key] = i
		}
		rec := &records[i]
		if rec.Email == "" {
			rec.Email = strings.TrimSpace(t.Email)
		}
		if t.FollowUpDate != "" {
			rec.FollowUpDate = t.FollowUpDate
		}
		if t.Stage != "" {
			rec.Stage = t.Stage
		}
		rec.MeetingNeeded = rec.MeetingNeeded || t.MeetingNeeded
		if t.Ticker != "" || t.TicketID != "" {
			rec.Trades = append(rec.Trades, t.Trade)
		}
	}
	return records
}
