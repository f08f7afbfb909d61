package tradelog

import "orqon-dispatch/internal/models"

// extraction is the document the text-generation service returns.
type extraction struct {
	Trades []extractedTrade `json:"trades"`
}

type extractedTrade struct {
	TicketID      string   `json:"ticket_id"`
	ClientName    string   `json:"client_name"`
	Email         string   `json:"email"`
	Account       string   `json:"account"`
	Side          string   `json:"side"`
	Ticker        string   `json:"ticker"`
	Quantity      float64  `json:"quantity"`
	OrderType     string   `json:"order_type"`
	Price         *float64 `json:"price"`
	Solicited     *bool    `json:"solicited"`
	Notes         string   `json:"notes"`
	FollowUpDate  string   `json:"follow_up_date"`
	Stage         string   `json:"stage"`
	MeetingNeeded bool     `json:"meeting_needed"`
}

// Logged is the payload of a successful trade log.
type Logged struct {
	Tickets      []models.TradeTicket `json:"tickets"`
	ReviewAlerts int                  `json:"reviewAlerts"`
	AlertsFailed int                  `json:"alertsFailed,omitempty"`
}

const extractPrompt = `You turn a financial advisor's trade notes into structured trades. Today is %s.
Reply with JSON only: {"trades": [{"ticket_id": "", "client_name": "", "email": "", "account": "",
"side": "BUY or SELL", "ticker": "", "quantity": 0, "order_type": "Market or Limit", "price": null,
"solicited": true, "notes": "", "follow_up_date": "YYYY-MM-DD", "stage": "", "meeting_needed": false}]}.
Use uppercase tickers. Leave a field empty when the notes do not state it. A trade the client asked for
unprompted is unsolicited. Use stage "Compliance Review" when the notes ask for compliance review.`
