// Package quote answers market quote questions and summarises the trade book
// when no ticker is named.
package quote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"orqon-dispatch/internal/collaborators/quotes"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const Name = "quote"

var (
	wordPattern   = regexp.MustCompile(`[A-Za-z]+`)
	comparePhrase = regexp.MustCompile(`(?i)\b(compare|vs|versus|or)\b`)
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	quotes quotes.Service
	logger Logger
}

func NewHandler(config *Config, svc quotes.Service, log Logger) *Handler {
	return &Handler{config: config, quotes: svc, logger: log}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	return q.Has(intent.Finance)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.Finance)
	tickers := extractTickers(q.Text)

	switch {
	case len(tickers) == 0:
		return h.summary(ctx, turn)
	case len(tickers) >= 2 && comparePhrase.MatchString(q.Text):
		if len(tickers) > h.config.MaxCompare {
			tickers = tickers[:h.config.MaxCompare]
		}
		return h.compare(ctx, turn, tickers)
	}

	turn.Execute()
	quote, err := h.quotes.GetQuote(ctx, tickers[0])
	if errors.Is(err, quotes.ErrNoQuote) {
		return &models.Outcome{
			Handler:      Name,
			Category:     category,
			Kind:         models.OutcomeNotFound,
			ResponseText: fmt.Sprintf("No quote is available for %s.", tickers[0]),
			MissingField: "quote",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	text := describe(quote)
	if note := holdingNote(turn.Snapshot(), quote.Ticker); note != "" {
		text += " " + note
	}
	return models.Answer(Name, category, text, toPayload(quote)), nil
}

// compare fetches every ticker in parallel. Any failure fails the whole answer.
func (h *Handler) compare(ctx context.Context, turn *dispatch.Turn, tickers []string) (*models.Outcome, error) {
	turn.Execute()
	results := make([]*models.Quote, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tickers {
		g.Go(func() error {
			q, err := h.quotes.GetQuote(gctx, t)
			if err != nil {
				return err
			}
			results[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, quotes.ErrNoQuote) {
			return &models.Outcome{
				Handler:      Name,
				Category:     string(intent.Finance),
				Kind:         models.OutcomeNotFound,
				ResponseText: fmt.Sprintf("I couldn't get quotes for all of %s.", strings.Join(tickers, ", ")),
				MissingField: "quote",
			}, nil
		}
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Comparison:")
	payload := Comparison{}
	for _, q := range results {
		fmt.Fprintf(&b, "\n- %s", describe(q))
		payload.Quotes = append(payload.Quotes, toPayload(q))
	}
	best := results[0]
	for _, q := range results[1:] {
		if q.ChangePct > best.ChangePct {
			best = q
		}
	}
	fmt.Fprintf(&b, "\n%s is the stronger performer today.", best.Ticker)

	return models.Answer(Name, string(intent.Finance), b.String(), payload), nil
}

func (h *Handler) summary(ctx context.Context, turn *dispatch.Turn) (*models.Outcome, error) {
	recs, err := turn.Records(ctx)
	if err != nil {
		return nil, err
	}
	turn.Execute()

	s := TradeSummary{}
	counts := map[string]int{}
	for _, r := range recs {
		for _, t := range r.Trades {
			s.Trades++
			switch strings.ToUpper(t.Side) {
			case "BUY":
				s.Buys++
			case "SELL":
				s.Sells++
			}
			if t.Solicited {
				s.Solicited++
			}
			if t.Ticker != "" {
				counts[strings.ToUpper(t.Ticker)]++
			}
		}
	}
	for t, n := range counts {
		s.TopTickers = append(s.TopTickers, TickerCount{Ticker: t, Trades: n})
	}
	sort.Slice(s.TopTickers, func(i, j int) bool {
		if s.TopTickers[i].Trades != s.TopTickers[j].Trades {
			return s.TopTickers[i].Trades > s.TopTickers[j].Trades
		}
		return s.TopTickers[i].Ticker < s.TopTickers[j].Ticker
	})
	if len(s.TopTickers) > h.config.TopTickers {
		s.TopTickers = s.TopTickers[:h.config.TopTickers]
	}

	h.logger.Debug("no ticker in finance question, summarising trades", map[string]interface{}{"trades": s.Trades})

	if s.Trades == 0 {
		return models.Answer(Name, string(intent.Finance),
			"I couldn't find a ticker in your question, and there are no trades on record yet.", s), nil
	}
	top := make([]string, 0, len(s.TopTickers))
	for _, tc := range s.TopTickers {
		top = append(top, fmt.Sprintf("%s (%d)", tc.Ticker, tc.Trades))
	}
	return models.Answer(Name, string(intent.Finance), fmt.Sprintf(
		"I couldn't find a ticker in your question. Across your book: %d trades (%d buys, %d sells, %d solicited). Most traded: %s.",
		s.Trades, s.Buys, s.Sells, s.Solicited, strings.Join(top, ", ")), s), nil
}

// extractTickers returns known tickers in order of first mention.
func extractTickers(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range wordPattern.FindAllString(text, -1) {
		sym, ok := tickerNames[strings.ToLower(w)]
		if !ok {
			continue
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

func describe(q *models.Quote) string {
	sign := "+"
	if q.Change < 0 {
		sign = ""
	}
	return fmt.Sprintf("%s is trading at $%.2f (%s%.2f, %s%.2f%% today; open %.2f, high %.2f, low %.2f, prev close %.2f).",
		q.Ticker, q.Price, sign, q.Change, sign, q.ChangePct, q.Open, q.High, q.Low, q.PrevClose)
}

// holdingNote mentions the last discussed client when they traded ticker.
func holdingNote(snap models.SharedContext, ticker string) string {
	e := snap.LastResolvedEntity
	if e == nil {
		return ""
	}
	n := 0
	for _, t := range e.Record.Trades {
		if strings.EqualFold(t.Ticker, ticker) {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%s has %d trade(s) in %s on record.", e.Record.FullName, n, ticker)
}

var _ dispatch.Handler = (*Handler)(nil)
