// Package email delivers outbound client emails.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"orqon-dispatch/internal/common/aws"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
)

// Service sends one HTML email. Sends have side effects and are never retried.
type Service interface {
	Send(ctx context.Context, to, subject, html string) error
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
}

// SESService sends through Amazon SES.
type SESService struct {
	ses    *aws.SESClient
	from   string
	logger Logger
}

func NewSESService(ses *aws.SESClient, from string, log Logger) *SESService {
	return &SESService{ses: ses, from: from, logger: log}
}

func (s *SESService) Send(ctx context.Context, to, subject, html string) error {
	if err := validate(to, subject); err != nil {
		return err
	}
	id, err := s.ses.SendHTML(ctx, s.from, to, subject, html)
	metrics.ObserveCall("email", err)
	if err != nil {
		return apperrors.NewUpstreamError("email", "send", err).WithMetadata("to", to)
	}
	s.logger.Info("email sent", map[string]interface{}{
		"to":        to,
		"messageId": id,
	})
	return nil
}

func validate(to, subject string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid recipient %q", to))
	}
	if strings.TrimSpace(subject) == "" {
		return apperrors.NewValidationError("subject is required")
	}
	return nil
}

// Message is an email captured by Outbox.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Outbox records messages instead of sending them.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, to, subject, html string) error {
	if err := validate(to, subject); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, Message{To: to, Subject: subject, HTML: html})
	return nil
}

func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}
