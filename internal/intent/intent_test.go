package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/models"
)

// ==========================
// Test Helpers
// ==========================

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func categories(signals []models.Signal) []models.Category {
	out := make([]models.Category, len(signals))
	for i, s := range signals {
		out[i] = s.Category
	}
	return out
}

// ==========================
// Alias Tests
// ==========================

func TestApplyAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"set a remainder for friday", "set a reminder for friday"},
		{"Add it to my Calender", "Add it to my calendar"},
		{"put it on gcal", "put it on calendar"},
		{"what is the pirce of apple stcok", "what is the price of apple stock"},
		{"emial John", "email John"},
		{"the remainders stay", "the remainders stay"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyAliases(tt.in))
		})
	}
}

// ==========================
// Keyword Classifier Tests
// ==========================

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier()

	tests := []struct {
		name    string
		text    string
		want    []models.Category
		notWant []models.Category
	}{
		{name: "short greeting", text: "hello", want: []models.Category{Greeting}},
		{name: "long greeting is not small talk", text: "hello can you show me the blotter data please", notWant: []models.Category{Greeting}},
		{name: "identity", text: "who are you?", want: []models.Category{Identity}},
		{name: "datetime", text: "what's the time", want: []models.Category{DateTime}},
		{name: "gratitude", text: "thanks a lot!", want: []models.Category{Gratitude}},
		{name: "hi inside a word", text: "this is it", notWant: []models.Category{Greeting}},
		{name: "trade log phrase", text: "log trade: client called, bought 200 AAPL", want: []models.Category{TradeLog}},
		{name: "side with quantity", text: "sell 1,500 TSLA for Maria", want: []models.Category{TradeLog}},
		{name: "buy without quantity", text: "should I buy apple", notWant: []models.Category{TradeLog}},
		{name: "scheduling after alias", text: ApplyAliases("set a remainder to call Ana"), want: []models.Category{Scheduling}},
		{name: "cancel all", text: "cancel all my meetings", want: []models.Category{Scheduling}},
		{name: "email lookup", text: "what is the email of John Smith", want: []models.Category{EmailLookup}, notWant: []models.Category{EmailSend}},
		{name: "possessive email lookup", text: "show John's email", want: []models.Category{EmailLookup}},
		{name: "email send with name", text: "email sheila about the rebalance", want: []models.Category{EmailSend}},
		{name: "email stopword", text: "email the team", notWant: []models.Category{EmailSend}},
		{name: "mail pronoun", text: "mail her the summary", want: []models.Category{EmailSend}},
		{name: "data", text: "show records for Wei Zhang", want: []models.Category{Data}},
		{name: "finance", text: "apple stock price", want: []models.Category{Finance}},
		{name: "compliance", text: "what is churning", want: []models.Category{Compliance}},
		{name: "nothing", text: "purple elephants dance", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, err := k.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			got := categories(signals)
			if tt.want == nil && tt.notWant == nil {
				assert.Empty(t, got)
			}
			for _, c := range tt.want {
				assert.Contains(t, got, c)
			}
			for _, c := range tt.notWant {
				assert.NotContains(t, got, c)
			}
			for _, s := range signals {
				assert.Equal(t, 1.0, s.Confidence)
			}
		})
	}
}

func TestKeywordClassifier_PrecedenceOrder(t *testing.T) {
	signals, err := NewKeywordClassifier().Classify(context.Background(), "schedule a meeting to review client data")
	require.NoError(t, err)
	got := categories(signals)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, Scheduling, got[0])
	assert.Contains(t, got, Data)
}

// ==========================
// LLM Classifier Tests
// ==========================

func TestLLMClassifier(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		want    []models.Category
		wantErr bool
	}{
		{
			name:  "fenced json, unknown category dropped",
			reply: "```json\n{\"categories\":[{\"category\":\"finance\",\"confidence\":0.6},{\"category\":\"weather\",\"confidence\":0.9}]}\n```",
			want:  []models.Category{Finance},
		},
		{
			name:  "sorted by confidence",
			reply: `{"categories":[{"category":"data","confidence":0.3},{"category":"compliance","confidence":0.7}]}`,
			want:  []models.Category{Compliance, Data},
		},
		{name: "schema violation", reply: `{"labels":["finance"]}`, wantErr: true},
		{name: "provider error", err: fmt.Errorf("503"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(&stubCompleter{reply: tt.reply, err: tt.err}, logger.NewTestLogger(t))
			signals, err := c.Classify(context.Background(), "anything")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, categories(signals))
			for _, s := range signals {
				assert.LessOrEqual(t, s.Confidence, maxLLMConfidence)
			}
		})
	}
}

func TestChain_FallbackOnlyWhenPrimaryEmpty(t *testing.T) {
	llm := &stubCompleter{reply: `{"categories":[{"category":"compliance","confidence":0.8}]}`}
	chain := &Chain{
		Primary:  NewKeywordClassifier(),
		Fallback: NewLLMClassifier(llm, logger.NewNoOpLogger()),
		Logger:   logger.NewNoOpLogger(),
	}

	signals, err := chain.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []models.Category{Greeting}, categories(signals))
	assert.Equal(t, 0, llm.calls)

	signals, err = chain.Classify(context.Background(), "purple elephants dance")
	require.NoError(t, err)
	assert.Equal(t, []models.Category{Compliance}, categories(signals))
	assert.Equal(t, 1, llm.calls)
}

func TestChain_FallbackFailureIsSilent(t *testing.T) {
	chain := &Chain{
		Primary:  NewKeywordClassifier(),
		Fallback: NewLLMClassifier(&stubCompleter{err: fmt.Errorf("down")}, logger.NewNoOpLogger()),
		Logger:   logger.NewNoOpLogger(),
	}
	signals, err := chain.Classify(context.Background(), "purple elephants dance")
	require.NoError(t, err)
	assert.Empty(t, signals)
}
