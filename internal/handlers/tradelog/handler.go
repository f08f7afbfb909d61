// Package tradelog turns free-form trade notes into blotter rows.
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"orqon-dispatch/internal/collaborators/alerts"
	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/collaborators/records"
	"orqon-dispatch/internal/common/validation"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const Name = "tradelog"

var ticketsSchema = validation.MustSchemaValidator("trade_tickets", validation.TradeTicketsSchema)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Handler struct {
	config   *Config
	llm      llm.Provider
	store    records.TradeStore
	notifier alerts.Notifier
	logger   Logger
	now      func() time.Time
}

// NewHandler wires the handler. provider may be nil, in which case every
// trade log is rejected as unparseable.
func NewHandler(config *Config, provider llm.Provider, store records.TradeStore, notifier alerts.Notifier, log Logger) *Handler {
	return &Handler{
		config:   config,
		llm:      provider,
		store:    store,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	return q.Has(intent.TradeLog)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	turn.Execute()

	tickets, err := h.extract(ctx, q.Original)
	if err != nil {
		h.logger.Warn("trade log not parsed", map[string]interface{}{"error": err.Error()})
		return &models.Outcome{
			Handler:      Name,
			Category:     string(intent.TradeLog),
			Kind:         models.OutcomeRejected,
			ResponseText: "I could not parse any trades from that log. Please include the client, side, quantity and ticker.",
		}, nil
	}

	known := h.enrich(ctx, turn, tickets)

	if err := h.store.InsertTrades(ctx, tickets); err != nil {
		return nil, err
	}
	h.logger.Info("trades logged", map[string]interface{}{"count": len(tickets)})

	logged := Logged{Tickets: tickets}
	for _, t := range tickets {
		if !strings.EqualFold(t.Stage, models.StageComplianceReview) || h.notifier == nil {
			continue
		}
		logged.ReviewAlerts++
		if err := h.notifier.ComplianceReview(ctx, t); err != nil {
			logged.AlertsFailed++
			h.logger.Warn("compliance alert failed", map[string]interface{}{
				"ticketId": t.TicketID,
				"error":    err.Error(),
			})
		}
	}

	if e := loggedClient(tickets, known); e != nil {
		turn.Stage(models.Resolution(e))
	}
	return models.Answer(Name, string(intent.TradeLog), summary(logged), logged), nil
}

// extract asks the text-generation service for the trades in notes and
// normalizes them into tickets.
func (h *Handler) extract(ctx context.Context, notes string) ([]models.TradeTicket, error) {
	if h.llm == nil {
		return nil, fmt.Errorf("text generation is not configured")
	}
	now := h.now()
	raw, err := h.llm.CompleteJSON(ctx, fmt.Sprintf(extractPrompt, now.Format("2006-01-02")), notes)
	if err != nil {
		return nil, err
	}
	raw = llm.ExtractJSON(raw)

	result, err := ticketsSchema.ValidateBytes([]byte(raw))
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	var doc extraction
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	if len(doc.Trades) == 0 {
		return nil, fmt.Errorf("no trades in reply")
	}
	if len(doc.Trades) > h.config.MaxTrades {
		return nil, fmt.Errorf("%d trades exceeds the limit of %d", len(doc.Trades), h.config.MaxTrades)
	}

	tickets := make([]models.TradeTicket, 0, len(doc.Trades))
	for _, t := range doc.Trades {
		tickets = append(tickets, h.ticket(t, now))
	}
	return tickets, nil
}

func (h *Handler) ticket(t extractedTrade, now time.Time) models.TradeTicket {
	id := strings.TrimSpace(t.TicketID)
	if id == "" {
		id = NewTicketID()
	}
	solicited := true
	if t.Solicited != nil {
		solicited = *t.Solicited
	}
	price := 0.0
	if t.Price != nil && *t.Price > 0 {
		price = *t.Price
	}
	orderType := strings.TrimSpace(t.OrderType)
	if orderType == "" {
		orderType = h.config.DefaultOrderType
	}
	stage := strings.TrimSpace(t.Stage)
	if stage == "" {
		stage = h.config.DefaultStage
	}
	return models.TradeTicket{
		ClientName: strings.Join(strings.Fields(t.ClientName), " "),
		Email:      strings.TrimSpace(t.Email),
		Account:    strings.TrimSpace(t.Account),
		Trade: models.Trade{
			TicketID:      id,
			Side:          strings.ToUpper(strings.TrimSpace(t.Side)),
			Ticker:        strings.ToUpper(strings.TrimSpace(t.Ticker)),
			Quantity:      int(math.Round(t.Quantity)),
			OrderType:     orderType,
			Price:         price,
			Solicited:     solicited,
			Timestamp:     now.UTC(),
			Notes:         strings.TrimSpace(t.Notes),
			FollowUpDate:  strings.TrimSpace(t.FollowUpDate),
			Stage:         stage,
			MeetingNeeded: t.MeetingNeeded,
		},
	}
}

// NewTicketID returns a ticket id of the form TKT-1a2b3c4d.
func NewTicketID() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}

// enrich fills missing email and account columns from the client's existing
// record. It returns the existing records by normalized name.
func (h *Handler) enrich(ctx context.Context, turn *dispatch.Turn, tickets []models.TradeTicket) map[string]models.Record {
	recs, err := turn.Records(ctx)
	if err != nil {
		h.logger.Warn("records unavailable, logging trades as given", map[string]interface{}{"error": err.Error()})
		return nil
	}
	known := make(map[string]models.Record, len(recs))
	for _, r := range recs {
		known[normalize(r.FullName)] = r
	}
	for i := range tickets {
		r, ok := known[normalize(tickets[i].ClientName)]
		if !ok {
			continue
		}
		if tickets[i].Email == "" {
			tickets[i].Email = r.Email
		}
		if tickets[i].Account == "" {
			tickets[i].Account = r.Account
		}
	}
	return known
}

// loggedClient returns the client of a single-client log with the new trades
// applied, or nil when the log names several clients.
func loggedClient(tickets []models.TradeTicket, known map[string]models.Record) *models.ResolvedEntity {
	name := normalize(tickets[0].ClientName)
	for _, t := range tickets[1:] {
		if normalize(t.ClientName) != name {
			return nil
		}
	}
	var base []models.Record
	if r, ok := known[name]; ok {
		r.Trades = append([]models.Trade(nil), r.Trades...)
		base = append(base, r)
	}
	agg := records.Aggregate(base, tickets)
	if len(agg) != 1 {
		return nil
	}
	return &models.ResolvedEntity{Record: agg[0], MatchKind: models.MatchExact, Confidence: 1}
}

func summary(l Logged) string {
	var b strings.Builder
	if len(l.Tickets) == 1 {
		b.WriteString("Logged 1 trade: ")
	} else {
		fmt.Fprintf(&b, "Logged %d trades: ", len(l.Tickets))
	}
	parts := make([]string, 0, len(l.Tickets))
	for _, t := range l.Tickets {
		parts = append(parts, fmt.Sprintf("%s %d %s for %s (%s)", t.Side, t.Quantity, t.Ticker, t.ClientName, t.TicketID))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(".")
	switch {
	case l.ReviewAlerts == 0:
	case l.AlertsFailed > 0:
		fmt.Fprintf(&b, " %d flagged for compliance review, but the compliance desk could not be notified about %d.", l.ReviewAlerts, l.AlertsFailed)
	default:
		fmt.Fprintf(&b, " %d flagged for compliance review; the compliance desk has been notified.", l.ReviewAlerts)
	}
	return b.String()
}

func normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

var _ dispatch.Handler = (*Handler)(nil)
