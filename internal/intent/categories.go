// Package intent attaches ranked categories to a query. The keyword
// classifier is deterministic and always runs; a text-generation classifier
// may be chained behind it for queries no keyword recognises.
package intent

import (
	"context"

	"orqon-dispatch/internal/models"
)

const (
	Greeting    models.Category = "greeting"
	Identity    models.Category = "identity"
	DateTime    models.Category = "datetime"
	Gratitude   models.Category = "gratitude"
	TradeLog    models.Category = "trade_log"
	Scheduling  models.Category = "scheduling"
	EmailLookup models.Category = "email_lookup"
	EmailSend   models.Category = "email_send"
	Data        models.Category = "data"
	Finance     models.Category = "finance"
	Compliance  models.Category = "compliance"
)

// Known lists every category in precedence order.
var Known = []models.Category{
	Greeting, Identity, DateTime, Gratitude,
	TradeLog, Scheduling, EmailLookup, EmailSend, Data, Finance, Compliance,
}

// IsKnown reports whether c is one of the categories above.
func IsKnown(c models.Category) bool {
	for _, k := range Known {
		if k == c {
			return true
		}
	}
	return false
}

// Conversational reports whether c is answered by canned small talk.
func Conversational(c models.Category) bool {
	switch c {
	case Greeting, Identity, DateTime, Gratitude:
		return true
	}
	return false
}

// Classifier returns ranked signals for text, best first.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]models.Signal, error)
}
