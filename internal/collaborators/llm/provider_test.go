package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orqon-dispatch/internal/common/errors"
)

type chatRequest struct {
	Model          string `json:"model"`
	Messages       []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func chatServer(t *testing.T, reply string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  seen.Model,
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, "  Churning is excessive trading.  ", &seen)

	p := NewOpenAIProvider(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	out, err := p.Complete(context.Background(), "You are a compliance assistant.", "what is churning")
	require.NoError(t, err)
	assert.Equal(t, "Churning is excessive trading.", out)

	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "what is churning", seen.Messages[1].Content)
	assert.Nil(t, seen.ResponseFormat)
}

func TestOpenAIProvider_CompleteJSON(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, `{"trades":[]}`, &seen)

	p := NewOpenAIProvider(Options{APIKey: "k", BaseURL: srv.URL})
	out, err := p.CompleteJSON(context.Background(), "extract", "log trade")
	require.NoError(t, err)
	assert.JSONEq(t, `{"trades":[]}`, out)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
}

func TestOpenAIProvider_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		code    apperrors.ErrorCode
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			},
			code: apperrors.ErrCodeUpstreamFailed,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
			},
			code: apperrors.ErrCodeUpstreamFailed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			code:    apperrors.ErrCodeUpstreamTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewOpenAIProvider(Options{APIKey: "k", BaseURL: srv.URL, Timeout: tt.timeout})
			_, err := p.Complete(context.Background(), "p", "c")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
