package quote

import (
	"time"

	"orqon-dispatch/internal/models"
)

// QuotePayload is one quote as returned to clients.
type QuotePayload struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Open      float64   `json:"open"`
	PrevClose float64   `json:"prev_close"`
	Timestamp time.Time `json:"timestamp"`
}

func toPayload(q *models.Quote) QuotePayload {
	return QuotePayload{
		Ticker:    q.Ticker,
		Price:     q.Price,
		Change:    q.Change,
		ChangePct: q.ChangePct,
		High:      q.High,
		Low:       q.Low,
		Open:      q.Open,
		PrevClose: q.PrevClose,
		Timestamp: q.Timestamp,
	}
}

// Comparison is the payload of a multi-ticker request.
type Comparison struct {
	Quotes []QuotePayload `json:"quotes"`
}

// TickerCount is how often a ticker was traded.
type TickerCount struct {
	Ticker string `json:"ticker"`
	Trades int    `json:"trades"`
}

// TradeSummary is the payload when the question names no ticker.
type TradeSummary struct {
	Trades     int           `json:"trades"`
	Buys       int           `json:"buys"`
	Sells      int           `json:"sells"`
	Solicited  int           `json:"solicited"`
	TopTickers []TickerCount `json:"top_tickers"`
}

// tickerNames maps company names and symbols to the quoted symbol.
var tickerNames = map[string]string{
	"apple": "AAPL", "aapl": "AAPL",
	"tesla": "TSLA", "tsla": "TSLA",
	"microsoft": "MSFT", "msft": "MSFT",
	"google": "GOOGL", "googl": "GOOGL", "alphabet": "GOOGL",
	"amazon": "AMZN", "amzn": "AMZN",
	"rivian": "RIVN", "rivn": "RIVN",
	"nvidia": "NVDA", "nvda": "NVDA",
	"meta": "META", "facebook": "META",
	"ibm": "IBM",
	"palantir": "PLTR", "pltr": "PLTR",
	"duke": "DUK", "duk": "DUK",
	"delta": "DAL", "dal": "DAL",
	"amd": "AMD", "netflix": "NFLX", "nflx": "NFLX", "jpmorgan": "JPM", "jpm": "JPM",
}
