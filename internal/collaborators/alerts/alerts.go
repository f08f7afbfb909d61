// Package alerts notifies the compliance desk about trades that need review.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"orqon-dispatch/internal/common/aws"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
)

const ReviewStage = models.StageComplianceReview

// Notifier publishes a review alert. Publishes are never retried.
type Notifier interface {
	ComplianceReview(ctx context.Context, ticket models.TradeTicket) error
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
}

// SNSNotifier publishes alerts to an SNS topic.
type SNSNotifier struct {
	sns      *aws.SNSClient
	topicARN string
	logger   Logger
}

func NewSNSNotifier(sns *aws.SNSClient, topicARN string, log Logger) *SNSNotifier {
	return &SNSNotifier{sns: sns, topicARN: topicARN, logger: log}
}

type reviewMessage struct {
	TicketID   string  `json:"ticketId"`
	ClientName string  `json:"clientName"`
	Account    string  `json:"account,omitempty"`
	Side       string  `json:"side"`
	Ticker     string  `json:"ticker"`
	Quantity   int     `json:"quantity"`
	Solicited  bool    `json:"solicited"`
	Notes      string  `json:"notes,omitempty"`
}

func (n *SNSNotifier) ComplianceReview(ctx context.Context, t models.TradeTicket) error {
	body, err := json.Marshal(reviewMessage{
		TicketID:   t.TicketID,
		ClientName: t.ClientName,
		Account:    t.Account,
		Side:       t.Side,
		Ticker:     t.Ticker,
		Quantity:   t.Quantity,
		Solicited:  t.Solicited,
		Notes:      t.Notes,
	})
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	subject := fmt.Sprintf("Compliance review: %s %s", t.ClientName, t.Ticker)
	id, err := n.sns.PublishToTopic(ctx, n.topicARN, subject, string(body), map[string]string{
		"stage":    ReviewStage,
		"ticketId": t.TicketID,
	})
	metrics.ObserveCall("alerts", err)
	if err != nil {
		return apperrors.NewUpstreamError("alerts", "publish", err).WithMetadata("ticketId", t.TicketID)
	}
	n.logger.Info("compliance alert published", map[string]interface{}{
		"ticketId":  t.TicketID,
		"messageId": id,
	})
	return nil
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu      sync.Mutex
	tickets []models.TradeTicket
}

func (r *Recorder) ComplianceReview(_ context.Context, t models.TradeTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, t)
	return nil
}

func (r *Recorder) Tickets() []models.TradeTicket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TradeTicket(nil), r.tickets...)
}
