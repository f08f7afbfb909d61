// Package conversational answers small talk and serves as the default handler
// for queries no other handler accepts.
package conversational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const (
	Name             = "conversational"
	CategoryFallback = "fallback"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	logger Logger
	now    func() time.Time
}

func NewHandler(config *Config, log Logger) *Handler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Handler{config: config, logger: log, now: time.Now}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	_, ok := h.category(q)
	return ok
}

func (h *Handler) category(q *models.Query) (models.Category, bool) {
	for _, s := range q.Signals {
		if intent.Conversational(s.Category) {
			return s.Category, true
		}
	}
	return "", false
}

func (h *Handler) Handle(_ context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	turn.Execute()

	c, ok := h.category(q)
	if !ok {
		h.logger.Debug("no handler matched, answering with overview", map[string]interface{}{
			"sessionId": turn.SessionID(),
		})
		return models.Answer(Name, CategoryFallback, h.overviewText(), Overview{Capabilities: capabilities}), nil
	}

	switch c {
	case intent.Greeting:
		greeting := "Hello!"
		if name := turn.Snapshot().LastEntityName; name != "" {
			greeting = fmt.Sprintf("Hello again! We were last looking at %s.", name)
		}
		return models.Answer(Name, string(c), greeting+" How can I help with your clients today?", nil), nil
	case intent.Identity:
		return models.Answer(Name, string(c), fmt.Sprintf(
			"I'm %s, an assistant for financial advisors. I can look up client records, log trades, schedule meetings, send emails, fetch quotes and answer compliance questions.",
			h.config.Assistant), nil), nil
	case intent.DateTime:
		now := h.now().In(h.config.Location)
		dt := DateTime{
			Date:     now.Format("2006-01-02"),
			Time:     now.Format("15:04"),
			Weekday:  now.Weekday().String(),
			TimeZone: h.config.Location.String(),
		}
		return models.Answer(Name, string(c), fmt.Sprintf("It's %s, %s, %s %s.",
			dt.Weekday, now.Format("January 2, 2006"), dt.Time, dt.TimeZone), dt), nil
	default:
		return models.Answer(Name, string(intent.Gratitude), "You're welcome! Anything else?", nil), nil
	}
}

func (h *Handler) overviewText() string {
	var b strings.Builder
	b.WriteString("I'm not sure what you need. Here is what I can do:")
	for _, c := range capabilities {
		fmt.Fprintf(&b, "\n- %s (e.g. %q)", c.Description, c.Example)
	}
	return b.String()
}

var _ dispatch.Handler = (*Handler)(nil)
