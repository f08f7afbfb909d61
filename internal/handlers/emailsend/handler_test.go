package emailsend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/collaborators/email"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/handlers/handlertest"
	"orqon-dispatch/internal/models"
)

type stubLLM struct {
	reply  string
	err    error
	inputs []string
}

func (s *stubLLM) Complete(ctx context.Context, prompt, in string) (string, error) {
	return s.CompleteJSON(ctx, prompt, in)
}

func (s *stubLLM) CompleteJSON(_ context.Context, _, in string) (string, error) {
	s.inputs = append(s.inputs, in)
	return s.reply, s.err
}

type countingMail struct {
	calls int
	err   error
}

func (c *countingMail) Send(context.Context, string, string, string) error {
	c.calls++
	return c.err
}

func newTestHandler(t *testing.T, mail email.Service, provider *stubLLM) *Handler {
	if provider == nil {
		return NewHandler(DefaultConfig(), mail, nil, logger.NewTestLogger(t))
	}
	return NewHandler(DefaultConfig(), mail, provider, logger.NewTestLogger(t))
}

// ==========================
// Matching Tests
// ==========================

func TestHandler_Matches(t *testing.T) {
	h := newTestHandler(t, &email.Outbox{}, nil)
	tests := []struct {
		text string
		want bool
	}{
		{"mail Maria Lopez about the rebalance", true},
		{"lets gmail wei", true},
		{"send an email to the client", true},
		{"what is maria's email", false},
		{"show me the email of Wei Zhang", false},
		{"email address please", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Matches(handlertest.Query(t, tt.text), models.SharedContext{}))
		})
	}
}

// ==========================
// Compose And Send Tests
// ==========================

func TestHandler_ComposedByLLM(t *testing.T) {
	var outbox email.Outbox
	provider := &stubLLM{reply: `{"to":"someone@else.com","subject":"Your rebalance","body":"Hi Maria,\nThe rebalance is done."}`}
	env := handlertest.NewEnv(t, models.SharedContext{})

	out, err := newTestHandler(t, &outbox, provider).Handle(context.Background(),
		handlertest.Query(t, "mail Maria Lopez about the rebalance"), env.Turn)
	require.NoError(t, err)
	assert.Equal(t, `Email sent to Maria Lopez (maria@example.com) with subject "Your rebalance".`, out.ResponseText)

	draft := out.Payload.(Draft)
	assert.Equal(t, "maria@example.com", draft.To, "recipient comes from the record")
	assert.Equal(t, composerLLM, draft.Composer)

	sent := outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "maria@example.com", sent[0].To)
	assert.Equal(t, "Hi Maria,<br>The rebalance is done.<br><br>Best regards", sent[0].HTML)

	require.Len(t, provider.inputs, 1)
	assert.Contains(t, provider.inputs[0], "Topic: the rebalance")
	assert.Equal(t, "Maria Lopez", *env.Turn.Staged().EntityName)
}

func TestHandler_TemplateFallback(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubLLM
	}{
		{name: "no text generation"},
		{name: "text generation fails", provider: &stubLLM{err: errors.New("rate limited")}},
		{name: "invalid json", provider: &stubLLM{reply: `not json`}},
		{name: "schema violation", provider: &stubLLM{reply: `{"subject":""}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outbox email.Outbox
			env := handlertest.NewEnv(t, models.SharedContext{})
			out, err := newTestHandler(t, &outbox, tt.provider).Handle(context.Background(),
				handlertest.Query(t, "mail Maria Lopez about the quarterly review"), env.Turn)
			require.NoError(t, err)

			draft := out.Payload.(Draft)
			assert.Equal(t, composerTemplate, draft.Composer)
			assert.Equal(t, "Regarding the quarterly review", draft.Subject)
			require.Len(t, outbox.Sent(), 1)
			assert.Contains(t, outbox.Sent()[0].HTML, "Hi Maria,<br><br>I wanted to follow up with you regarding the quarterly review.")
		})
	}
}

func TestHandler_HandoffRecipient(t *testing.T) {
	tests := []string{
		"send an email to Maria Lopez",
		"send the email about the statement",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			var outbox email.Outbox
			env := handlertest.NewEnv(t, handlertest.Handoff(t, "Maria Lopez"))
			_, err := newTestHandler(t, &outbox, nil).Handle(context.Background(), handlertest.Query(t, text), env.Turn)
			require.NoError(t, err)
			require.Len(t, outbox.Sent(), 1)
			assert.Equal(t, "maria@example.com", outbox.Sent()[0].To)
			assert.True(t, env.Turn.Staged().IsEmpty())
		})
	}
}

func TestHandler_NoSendOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		kind    models.OutcomeKind
		missing string
		reply   string
	}{
		{name: "no email on file", text: "email Wei Zhang about the review", kind: models.OutcomeNotFound, missing: "email"},
		{name: "no recipient", text: "send an email about the review", kind: models.OutcomeNotFound, reply: "Who should I email?"},
		{name: "ambiguous recipient", text: "email maria about the review", kind: models.OutcomeDisambiguation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &countingMail{}
			env := handlertest.NewEnv(t, models.SharedContext{})
			out, err := newTestHandler(t, mail, nil).Handle(context.Background(), handlertest.Query(t, tt.text), env.Turn)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.missing, out.MissingField)
			if tt.reply != "" {
				assert.Equal(t, tt.reply, out.ResponseText)
			}
			assert.Zero(t, mail.calls)
		})
	}
}

func TestHandler_SendFailureIsNotRetried(t *testing.T) {
	mail := &countingMail{err: apperrors.NewUpstreamError("email", "send", errors.New("throttled"))}
	env := handlertest.NewEnv(t, models.SharedContext{})

	_, err := newTestHandler(t, mail, nil).Handle(context.Background(),
		handlertest.Query(t, "mail Maria Lopez about the rebalance"), env.Turn)
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, 1, mail.calls)
}

func TestToHTML_Escapes(t *testing.T) {
	h := newTestHandler(t, &email.Outbox{}, nil)
	assert.Equal(t, "a &lt;b&gt;<br>c<br><br>Best regards", h.toHTML("a <b>\r\nc"))
}
