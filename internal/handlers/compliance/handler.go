// Package compliance answers compliance questions: client risk profiles,
// high-risk client lists and knowledge base guidance.
package compliance

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"orqon-dispatch/internal/collaborators/knowledge"
	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
)

const Name = "compliance"

const excerptLen = 240

var (
	profileRequest  = regexp.MustCompile(`(?i)\b(profile|history|background|past trades|risk|risky)\b`)
	highRiskRequest = regexp.MustCompile(`(?i)\b(high[- ]risk|risky|riskiest)\s+clients?\b|\bclients?\b.*\bby risk\b`)
	profileNouns    = `risk|profile|history|trade|trading|background|past`
	genericWords    = map[string]bool{
		"my": true, "the": true, "our": true, "this": true, "client": true, "clients": true,
		"trade": true, "trades": true, "trading": true, "risk": true, "profile": true,
		"history": true, "past": true, "background": true, "account": true,
	}
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Handler struct {
	config   *Config
	searcher knowledge.Searcher
	llm      llm.Provider
	logger   Logger
}

// NewHandler wires the handler. searcher and provider may be nil: guidance
// questions then find no articles, and articles are listed without a summary.
func NewHandler(config *Config, searcher knowledge.Searcher, provider llm.Provider, log Logger) *Handler {
	return &Handler{config: config, searcher: searcher, llm: provider, logger: log}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	return q.Has(intent.Compliance)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	if highRiskRequest.MatchString(q.Text) {
		return h.riskList(ctx, turn)
	}
	if profileRequest.MatchString(q.Text) {
		out, handled, err := h.profile(ctx, q, turn)
		if handled || err != nil {
			return out, err
		}
	}
	return h.guidance(ctx, q, turn)
}

// profile answers with a client's risk profile. handled is false when the
// question names no known client and no client was discussed before.
func (h *Handler) profile(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, bool, error) {
	category := string(intent.Compliance)
	fragment := handlers.Fragment(q.Text, "for", "of", "on", "about")
	if fragment == "" {
		fragment = handlers.PossessiveName(q.Text, profileNouns)
	}
	if generic(fragment) {
		fragment = ""
	}

	var rec models.Record
	last := turn.Snapshot().LastResolvedEntity
	switch {
	case last != nil && (fragment == "" || handlers.MentionsName(fragment, last.Record.FullName)):
		rec = turn.Handoff().Record
	case fragment != "":
		res, err := turn.Resolve(ctx, fragment)
		if err != nil {
			return nil, true, err
		}
		if res.Kind == resolver.NotFound {
			h.logger.Info("no client matched, searching guidance", map[string]interface{}{"fragment": fragment})
			return nil, false, nil
		}
		if out := handlers.Unresolved(Name, category, fragment, res); out != nil {
			return out, true, nil
		}
		rec = res.Entity.Record
	default:
		return nil, false, nil
	}

	turn.Execute()
	p := score(rec, h.config.RecentTrades)
	h.logger.Info("risk profile computed", map[string]interface{}{
		"client":    p.Name,
		"riskScore": p.RiskScore,
	})
	return models.Answer(Name, category, describeProfile(p), p), true, nil
}

func (h *Handler) riskList(ctx context.Context, turn *dispatch.Turn) (*models.Outcome, error) {
	recs, err := turn.Records(ctx)
	if err != nil {
		return nil, err
	}
	turn.Execute()

	list := RiskList{MinScore: h.config.HighRiskScore, Clients: []RiskEntry{}}
	for _, r := range recs {
		if p := score(r, 0); p.RiskScore >= h.config.HighRiskScore {
			list.Clients = append(list.Clients, RiskEntry{Name: p.Name, RiskScore: p.RiskScore})
		}
	}
	sort.Slice(list.Clients, func(i, j int) bool {
		if list.Clients[i].RiskScore != list.Clients[j].RiskScore {
			return list.Clients[i].RiskScore > list.Clients[j].RiskScore
		}
		return list.Clients[i].Name < list.Clients[j].Name
	})

	if len(list.Clients) == 0 {
		return models.Answer(Name, string(intent.Compliance),
			fmt.Sprintf("No clients have a risk score of %d or above.", list.MinScore), list), nil
	}
	names := make([]string, 0, len(list.Clients))
	for _, c := range list.Clients {
		names = append(names, fmt.Sprintf("%s (%d)", c.Name, c.RiskScore))
	}
	return models.Answer(Name, string(intent.Compliance), fmt.Sprintf("%s with a risk score of %d or above: %s.",
		plural(len(names), "client", "clients"), list.MinScore, strings.Join(names, ", ")), list), nil
}

// guidance searches the knowledge base and summarises what it finds with the
// recent conversation as context.
func (h *Handler) guidance(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.Compliance)
	turn.Execute()

	var articles []knowledge.Article
	if h.searcher != nil {
		var err error
		if articles, err = h.searcher.Search(ctx, q.Text, h.config.SearchLimit); err != nil {
			return nil, err
		}
	}
	if len(articles) == 0 {
		return &models.Outcome{
			Handler:      Name,
			Category:     category,
			Kind:         models.OutcomeNotFound,
			ResponseText: "I couldn't find anything in the compliance knowledge base about that.",
		}, nil
	}

	g := Guidance{Articles: articles, Summarizer: summarizerCanned}
	if h.llm != nil {
		history, err := turn.Recent(ctx, h.config.RecentTurns)
		if err != nil {
			h.logger.Warn("session history unavailable", map[string]interface{}{"error": err.Error()})
		}
		answer, err := h.llm.Complete(ctx, summarizePrompt, summaryInput(q.Original, history, articles))
		if err == nil && strings.TrimSpace(answer) != "" {
			g.Answer = strings.TrimSpace(answer)
			g.Summarizer = summarizerLLM
		} else if err != nil {
			h.logger.Warn("guidance summary fell back to excerpts", map[string]interface{}{"error": err.Error()})
		}
	}
	if g.Answer == "" {
		g.Answer = canned(articles)
	}
	return models.Answer(Name, category, g.Answer, g), nil
}

func summaryInput(question string, history []models.SessionEntry, articles []knowledge.Article) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, e := range history {
			fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Knowledge base:\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "[%d] %s", i+1, a.Title)
		if a.Source != "" {
			fmt.Fprintf(&b, " (%s)", a.Source)
		}
		fmt.Fprintf(&b, "\n%s\n\n", a.Body)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func canned(articles []knowledge.Article) string {
	var b strings.Builder
	b.WriteString("Here is what the compliance knowledge base says:")
	for _, a := range articles {
		fmt.Fprintf(&b, "\n- %s: %s", a.Title, excerpt(a.Body))
	}
	return b.String()
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= excerptLen {
		return s
	}
	cut := strings.LastIndex(s[:excerptLen], " ")
	if cut <= 0 {
		cut = excerptLen
	}
	return s[:cut] + "..."
}

func describeProfile(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has a risk score of %d/%d", p.Name, p.RiskScore, maxScore)
	if len(p.Factors) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(p.Factors, "; "))
	}
	b.WriteString(".")
	switch p.TotalTrades {
	case 0:
		b.WriteString(" No trades on record.")
	default:
		fmt.Fprintf(&b, " %s on record: %d solicited, %d unsolicited.",
			plural(p.TotalTrades, "trade", "trades"), p.Solicited, p.Unsolicited)
	}
	if len(p.RecentTrades) > 0 {
		l := p.RecentTrades[0]
		fmt.Fprintf(&b, " Latest: %s %d %s", l.Side, l.Quantity, l.Ticker)
		if l.Date != "" {
			fmt.Fprintf(&b, " on %s", l.Date)
		}
		b.WriteString(".")
	}
	return b.String()
}

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

var _ dispatch.Handler = (*Handler)(nil)
