package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Logger Implementation
// ==========================

type recordingLogger struct {
	messages []string
	fields   []map[string]interface{}
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.messages = append(l.messages, msg)
	l.fields = append(l.fields, fields)
}

// ==========================
// Constructor Tests
// ==========================

func TestNewUpstreamError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"plain failure", fmt.Errorf("status 503"), ErrCodeUpstreamFailed},
		{"deadline", context.DeadlineExceeded, ErrCodeUpstreamTimeout},
		{"wrapped cancel", fmt.Errorf("do: %w", context.Canceled), ErrCodeUpstreamTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := NewUpstreamError("quotes", "get_quote", tt.err)
			assert.Equal(t, tt.wantCode, stdErr.Code)
			assert.True(t, stdErr.Retryable)
			assert.Equal(t, "quotes", stdErr.Metadata["service"])
			assert.True(t, IsUpstream(stdErr))
			assert.True(t, stderrors.Is(stdErr, tt.err))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	plain := Normalize(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)

	wrapped := fmt.Errorf("handler: %w", NewValidationError("empty text"))
	got := Normalize(wrapped)
	assert.Equal(t, ErrCodeValidationFailed, got.Code)
	assert.True(t, IsValidation(wrapped))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidationFailed))
	assert.Equal(t, "ROUTING", GetErrorCategory(ErrCodeDuplicatePriority))
	assert.Equal(t, "UPSTREAM", GetErrorCategory(ErrCodeUpstreamTimeout))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeRecordSourceFailed))
	assert.Equal(t, "CONCURRENCY", GetErrorCategory(ErrCodeSessionBusy))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

// ==========================
// Boundary Tests
// ==========================

func TestUserMessage_NeverLeaksDetails(t *testing.T) {
	secret := "api_key=sk-live-123 at https://internal.example"
	errs := []error{
		NewUpstreamError("openai", "complete", fmt.Errorf("%s", secret)),
		NewRecordSourceError(fmt.Errorf("%s", secret)),
		fmt.Errorf("%s", secret),
		NewRoutingExhaustedError(secret),
		NewSessionBusyError(secret, fmt.Errorf("%s", secret)),
	}

	for _, err := range errs {
		msg := UserMessage(err)
		assert.NotEmpty(t, msg)
		assert.False(t, strings.Contains(msg, "sk-live"), msg)
		assert.False(t, strings.Contains(msg, "internal.example"), msg)
	}
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	stdErr, msg := h.Handle(NewUpstreamError("ses", "send", fmt.Errorf("throttled")), map[string]interface{}{
		"sessionId": "s-1",
	})

	require.NotNil(t, stdErr)
	assert.Equal(t, ErrCodeUpstreamFailed, stdErr.Code)
	assert.Equal(t, UserMessage(stdErr), msg)
	require.Len(t, log.fields, 1)
	assert.Equal(t, "s-1", log.fields[0]["sessionId"])
	assert.Equal(t, "UPSTREAM", log.fields[0]["errorCategory"])
	assert.Equal(t, "ses", log.fields[0]["service"])
}

// ==========================
// Retry Tests
// ==========================

func TestRetryOnce(t *testing.T) {
	RetryBackoff = time.Millisecond

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"success first try", 0, nil, 1, false},
		{"upstream recovers on retry", 1, NewUpstreamError("quotes", "get_quote", fmt.Errorf("503")), 2, false},
		{"upstream fails twice", 5, NewUpstreamError("quotes", "get_quote", fmt.Errorf("503")), 2, true},
		{"validation not retried", 5, NewValidationError("bad"), 1, true},
		{"plain error not retried", 5, fmt.Errorf("boom"), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryOnce(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryOnce_StopsOnCancelledContext(t *testing.T) {
	RetryBackoff = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryOnce(ctx, func(ctx context.Context) error {
		calls++
		return NewUpstreamError("index", "query", fmt.Errorf("unavailable"))
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
