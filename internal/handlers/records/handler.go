// Package records answers client data questions: email lookups and tables of
// clients and their trades.
package records

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const Name = "records"

var (
	allClients   = regexp.MustCompile(`(?i)\b(all|every|list)\b`)
	genericWords = map[string]bool{
		"my": true, "the": true, "our": true, "trade": true, "trades": true, "client": true, "clients": true,
		"record": true, "records": true, "data": true, "account": true, "accounts": true, "blotter": true,
		"table": true, "follow": true, "ups": true, "up": true, "follow-ups": true, "meetings": true, "everyone": true,
	}
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	logger Logger
}

func NewHandler(config *Config, log Logger) *Handler {
	return &Handler{config: config, logger: log}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

// Matches accepts email lookups and data questions, except those that carry
// a scheduling, trade log or compliance signal.
func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	if q.Has(intent.EmailLookup) {
		return true
	}
	return q.Has(intent.Data) && !q.Has(intent.Scheduling) && !q.Has(intent.TradeLog) && !q.Has(intent.Compliance)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	if q.Has(intent.EmailLookup) {
		return h.emailLookup(ctx, q, turn)
	}
	return h.records(ctx, q, turn)
}

func (h *Handler) emailLookup(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.EmailLookup)
	fragment := emailFragment(q.Text)

	rec, out, err := h.client(ctx, turn, category, fragment)
	if err != nil || out != nil {
		return out, err
	}

	turn.Execute()
	if rec.Field("email") == "" {
		return handlers.MissingField(Name, category, *rec, "email"), nil
	}
	return models.Answer(Name, category,
		fmt.Sprintf("%s's email is %s.", rec.FullName, rec.Email),
		EmailAnswer{Name: rec.FullName, Email: rec.Email}), nil
}

func (h *Handler) records(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.Data)
	fragment := handlers.Fragment(q.Text, "for", "of", "about", "on")
	if generic(fragment) {
		fragment = ""
	}

	if fragment == "" || allClients.MatchString(fragment) {
		if fragment == "" && !allClients.MatchString(q.Text) {
			if e := turn.Handoff(); e != nil {
				turn.Execute()
				return h.clientTable(e.Record), nil
			}
		}
		recs, err := turn.Records(ctx)
		if err != nil {
			return nil, err
		}
		turn.Execute()
		return h.overviewTable(recs), nil
	}

	rec, out, err := h.client(ctx, turn, category, fragment)
	if err != nil || out != nil {
		return out, err
	}
	turn.Execute()
	return h.clientTable(*rec), nil
}

// client finds the record the query is about. The shared context is used when
// the fragment names the last resolved entity or is empty.
func (h *Handler) client(ctx context.Context, turn *dispatch.Turn, category, fragment string) (*models.Record, *models.Outcome, error) {
	last := turn.Snapshot().LastResolvedEntity
	if last != nil && (fragment == "" || handlers.MentionsName(fragment, last.Record.FullName)) {
		e := turn.Handoff()
		return &e.Record, nil, nil
	}

	res, err := turn.Resolve(ctx, fragment)
	if err != nil {
		return nil, nil, err
	}
	if out := handlers.Unresolved(Name, category, fragment, res); out != nil {
		h.logger.Debug("client not resolved", map[string]interface{}{
			"fragment": fragment,
			"kind":     string(res.Kind),
		})
		return nil, out, nil
	}
	return &res.Entity.Record, nil, nil
}

func (h *Handler) overviewTable(recs []models.Record) *models.Outcome {
	sorted := append([]models.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FullName < sorted[j].FullName })

	t := Table{Title: "Clients", Headers: clientHeaders}
	for i, r := range sorted {
		if i == h.config.MaxRows {
			break
		}
		t.Rows = append(t.Rows, []string{r.FullName, r.Email, r.Account, r.Stage, r.FollowUpDate, yesNo(r.MeetingNeeded)})
	}
	if len(sorted) > h.config.MaxRows {
		t.Footer = fmt.Sprintf("Showing %d of %d clients", h.config.MaxRows, len(sorted))
	} else {
		t.Footer = fmt.Sprintf("%d clients", len(sorted))
	}

	text := "There are no client records yet."
	if len(sorted) > 0 {
		text = fmt.Sprintf("Here are your clients (%s).", strings.ToLower(t.Footer))
	}
	return models.Answer(Name, string(intent.Data), text, t)
}

func (h *Handler) clientTable(r models.Record) *models.Outcome {
	trades := append([]models.Trade(nil), r.Trades...)
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp.After(trades[j].Timestamp) })

	t := Table{Title: "Trades for " + r.FullName, Headers: tradeHeaders}
	for i, tr := range trades {
		if i == h.config.MaxRows {
			break
		}
		date := ""
		if !tr.Timestamp.IsZero() {
			date = tr.Timestamp.Format("2006-01-02")
		}
		t.Rows = append(t.Rows, []string{
			tr.TicketID, date, tr.Side, tr.Ticker, strconv.Itoa(tr.Quantity),
			formatPrice(tr.Price), yesNo(tr.Solicited), tr.Stage,
		})
	}
	if len(trades) > h.config.MaxRows {
		t.Footer = fmt.Sprintf("Showing %d of %d trades", h.config.MaxRows, len(trades))
	}

	var b strings.Builder
	b.WriteString(r.FullName)
	var details []string
	if r.Account != "" {
		details = append(details, "account "+r.Account)
	}
	if r.Email != "" {
		details = append(details, r.Email)
	}
	if r.Stage != "" {
		details = append(details, "stage "+r.Stage)
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}
	switch len(trades) {
	case 0:
		b.WriteString(" has no trades on record.")
	case 1:
		b.WriteString(" has 1 trade on record.")
	default:
		fmt.Fprintf(&b, " has %d trades on record.", len(trades))
	}
	if len(trades) > 0 {
		l := trades[0]
		fmt.Fprintf(&b, " Latest: %s %d %s.", l.Side, l.Quantity, l.Ticker)
	}
	if r.FollowUpDate != "" {
		fmt.Fprintf(&b, " Follow-up due %s.", r.FollowUpDate)
	}
	return models.Answer(Name, string(intent.Data), b.String(), t)
}

// emailFragment extracts the client name from an email lookup question.
func emailFragment(text string) string {
	if f := handlers.Fragment(text, "email address of", "email address for", "email id of", "email of", "email for", "mail of", "mail for"); f != "" {
		return f
	}
	return handlers.PossessiveName(text, `e-?mail|mail`)
}

// generic reports whether every word of s is data vocabulary rather than a name.
func generic(s string) bool {
	words := strings.Fields(strings.ToLower(s))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !genericWords[w] {
			return false
		}
	}
	return true
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatPrice(p float64) string {
	if p == 0 {
		return "MKT"
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}

var _ dispatch.Handler = (*Handler)(nil)
