package conversational

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

func newTestHandler(t *testing.T) *Handler {
	h := NewHandler(DefaultConfig(), logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC) }
	return h
}

func classify(t *testing.T, text string) *models.Query {
	t.Helper()
	signals, err := intent.NewKeywordClassifier().Classify(context.Background(), text)
	require.NoError(t, err)
	return &models.Query{Text: text, SessionID: "s1", Signals: signals}
}

// ==========================
// Matching Tests
// ==========================

func TestHandler_Matches(t *testing.T) {
	h := newTestHandler(t)
	tests := []struct {
		text string
		want bool
	}{
		{"hello", true},
		{"who are you", true},
		{"what is the time", true},
		{"thanks a lot", true},
		{"hello can you show me all the trades for maria lopez please", false},
		{"show records for Maria Lopez", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Matches(classify(t, tt.text), models.SharedContext{}))
		})
	}
}

// ==========================
// Handle Tests
// ==========================

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		snap     models.SharedContext
		category string
		contains string
	}{
		{name: "greeting", text: "hi", category: "greeting", contains: "Hello!"},
		{name: "greeting with context", text: "hey there", snap: models.SharedContext{LastEntityName: "Maria Lopez"}, category: "greeting", contains: "Maria Lopez"},
		{name: "identity", text: "who are you", category: "identity", contains: "I'm Orqon"},
		{name: "datetime", text: "what is the date", category: "datetime", contains: "Monday, March 10, 2025, 14:30 UTC"},
		{name: "gratitude", text: "thank you", category: "gratitude", contains: "welcome"},
		{name: "fallback", text: "sing me a song", category: CategoryFallback, contains: "Here is what I can do"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			turn := dispatch.NewTestTurn("s1", tt.snap, nil, nil, nil)

			out, err := h.Handle(context.Background(), classify(t, tt.text), turn)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeAnswer, out.Kind)
			assert.Equal(t, tt.category, out.Category)
			assert.Contains(t, out.ResponseText, tt.contains)
			assert.Equal(t, models.StateExecuting, turn.State())
		})
	}
}

func TestHandler_FallbackPayload(t *testing.T) {
	out, err := newTestHandler(t).Handle(context.Background(), classify(t, "sing me a song"), dispatch.NewTestTurn("s1", models.SharedContext{}, nil, nil, nil))
	require.NoError(t, err)
	overview, ok := out.Payload.(Overview)
	require.True(t, ok)
	assert.Len(t, overview.Capabilities, 6)
}
