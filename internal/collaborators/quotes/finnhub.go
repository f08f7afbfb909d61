// Package quotes fetches market quotes from Finnhub.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "orqon-dispatch/internal/common/errors"
	apphttp "orqon-dispatch/internal/common/http"
	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
)

// ErrNoQuote means the provider knows nothing about the ticker.
var ErrNoQuote = errors.New("no quote available")

// Service returns the latest quote for a ticker.
type Service interface {
	GetQuote(ctx context.Context, ticker string) (*models.Quote, error)
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// FinnhubClient calls the Finnhub /quote endpoint.
type FinnhubClient struct {
	client  *apphttp.Client
	baseURL string
	apiKey  string
}

func NewFinnhubClient(baseURL, apiKey string, timeout time.Duration) *FinnhubClient {
	return &FinnhubClient{
		client:  apphttp.NewClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// GetQuote is an idempotent read and is retried once on failure.
func (f *FinnhubClient) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, apperrors.NewValidationError("ticker is required")
	}

	var q finnhubQuote
	err := apperrors.RetryOnce(ctx, func(ctx context.Context) error {
		q = finnhubQuote{}
		err := f.fetch(ctx, ticker, &q)
		metrics.ObserveCall("quotes", err)
		if err != nil {
			return apperrors.NewUpstreamError("quotes", "get_quote", err).WithMetadata("ticker", ticker)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if q.Current == 0 && q.Timestamp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, ticker)
	}
	return &models.Quote{
		Ticker:    ticker,
		Price:     q.Current,
		Change:    q.Change,
		ChangePct: q.ChangePercent,
		High:      q.High,
		Low:       q.Low,
		Open:      q.Open,
		PrevClose: q.PrevClose,
		Timestamp: time.Unix(q.Timestamp, 0).UTC(),
	}, nil
}

func (f *FinnhubClient) fetch(ctx context.Context, ticker string, out *finnhubQuote) error {
	u := fmt.Sprintf("%s/quote?symbol=%s", f.baseURL, url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Finnhub-Token", f.apiKey)
	return f.client.DoJSON(ctx, req, out)
}
