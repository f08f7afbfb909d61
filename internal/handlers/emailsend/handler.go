// Package emailsend composes and sends client emails.
package emailsend

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"orqon-dispatch/internal/collaborators/email"
	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/common/validation"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const Name = "emailsend"

var (
	topicMarker = regexp.MustCompile(`(?i)\b(?:about|regarding|re:|saying|that|to say)\s+(.+)$`)
	draftSchema = validation.MustSchemaValidator("email_draft", validation.EmailDraftSchema)
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	email  email.Service
	llm    llm.Provider
	logger Logger
}

// NewHandler wires the handler. provider may be nil, in which case every email
// uses the template.
func NewHandler(config *Config, mail email.Service, provider llm.Provider, log Logger) *Handler {
	return &Handler{config: config, email: mail, llm: provider, logger: log}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	return q.Has(intent.EmailSend) && !q.Has(intent.EmailLookup)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.EmailSend)
	fragment := handlers.Fragment(q.Text, "email to", "mail to", "write to", "gmail", "email", "mail")

	var rec models.Record
	last := turn.Snapshot().LastResolvedEntity
	switch {
	case last != nil && (fragment == "" || handlers.MentionsName(fragment, last.Record.FullName)):
		rec = turn.Handoff().Record
	case fragment != "":
		res, err := turn.Resolve(ctx, fragment)
		if err != nil {
			return nil, err
		}
		if out := handlers.Unresolved(Name, category, fragment, res); out != nil {
			return out, nil
		}
		rec = res.Entity.Record
	default:
		turn.Execute()
		return &models.Outcome{
			Handler:      Name,
			Category:     category,
			Kind:         models.OutcomeNotFound,
			ResponseText: "Who should I email?",
		}, nil
	}

	turn.Execute()
	if rec.Field("email") == "" {
		return handlers.MissingField(Name, category, rec, "email"), nil
	}

	topic := ""
	if m := topicMarker.FindStringSubmatch(q.Text); m != nil {
		topic = strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
	}

	draft := h.compose(ctx, rec, topic, q.Original)
	draft.To = rec.Email

	if err := h.email.Send(ctx, draft.To, draft.Subject, h.toHTML(draft.Body)); err != nil {
		return nil, err
	}
	h.logger.Info("client email sent", map[string]interface{}{
		"client":   rec.FullName,
		"composer": draft.Composer,
	})

	return models.Answer(Name, category,
		fmt.Sprintf("Email sent to %s (%s) with subject %q.", rec.FullName, rec.Email, draft.Subject),
		draft), nil
}

// compose asks the text-generation service for a draft and falls back to the
// template when it fails or returns an invalid document.
func (h *Handler) compose(ctx context.Context, rec models.Record, topic, request string) Draft {
	if h.llm != nil {
		in := fmt.Sprintf("Client: %s <%s>\nTopic: %s\nAdvisor request: %s", rec.FullName, rec.Email, topic, request)
		raw, err := h.llm.CompleteJSON(ctx, composePrompt, in)
		if err == nil {
			var d Draft
			if d, err = parseDraft(raw); err == nil {
				d.Composer = composerLLM
				return d
			}
		}
		h.logger.Warn("email composition fell back to template", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return template(rec, topic)
}

func parseDraft(raw string) (Draft, error) {
	raw = llm.ExtractJSON(raw)
	result, err := draftSchema.ValidateBytes([]byte(raw))
	if err != nil {
		return Draft{}, err
	}
	if err := result.Err(); err != nil {
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, err
	}
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)
	return d, nil
}

func template(rec models.Record, topic string) Draft {
	first := rec.FullName
	if f := strings.Fields(rec.FullName); len(f) > 0 {
		first = f[0]
	}
	subject := "Following up"
	body := fmt.Sprintf("Hi %s,\n\nI wanted to follow up with you. Please let me know a good time to connect.", first)
	if topic != "" {
		subject = "Regarding " + topic
		body = fmt.Sprintf("Hi %s,\n\nI wanted to follow up with you regarding %s. Please let me know if you have any questions.", first, topic)
	}
	return Draft{Subject: subject, Body: body, Composer: composerTemplate}
}

func (h *Handler) toHTML(body string) string {
	escaped := html.EscapeString(body + "\n\n" + h.config.Signature)
	return strings.ReplaceAll(strings.ReplaceAll(escaped, "\r\n", "\n"), "\n", "<br>")
}

var _ dispatch.Handler = (*Handler)(nil)
