package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orqon-dispatch/internal/common/errors"
)

func init() {
	apperrors.RetryBackoff = time.Millisecond
}

func TestFinnhubClient_GetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.Header.Get("X-Finnhub-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"c":187.5,"d":1.2,"dp":0.64,"h":188,"l":185.1,"o":186,"pc":186.3,"t":1740830400}`))
	}))
	defer srv.Close()

	q, err := NewFinnhubClient(srv.URL+"/", "secret", time.Second).GetQuote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Ticker)
	assert.Equal(t, 187.5, q.Price)
	assert.Equal(t, 0.64, q.ChangePct)
	assert.Equal(t, 186.3, q.PrevClose)
	assert.Equal(t, time.Unix(1740830400, 0).UTC(), q.Timestamp)
}

func TestFinnhubClient_RetriesOnceThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFinnhubClient(srv.URL, "k", time.Second).GetQuote(context.Background(), "TSLA")
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFinnhubClient_RecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"c":10,"t":1}`))
	}))
	defer srv.Close()

	q, err := NewFinnhubClient(srv.URL, "k", time.Second).GetQuote(context.Background(), "DAL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Price)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFinnhubClient_UnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	}))
	defer srv.Close()

	_, err := NewFinnhubClient(srv.URL, "k", time.Second).GetQuote(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoQuote))
	assert.False(t, apperrors.IsUpstream(err))
}

func TestFinnhubClient_EmptyTicker(t *testing.T) {
	_, err := NewFinnhubClient("http://unused", "k", time.Second).GetQuote(context.Background(), "  ")
	assert.True(t, apperrors.IsValidation(err))
}
