// internal/models/record.go
package models

import (
	"strings"
	"time"
)

// StageComplianceReview marks trades held for compliance review.
const StageComplianceReview = "Compliance Review"

// Trade is one row of the trade blotter.
type Trade struct {
	TicketID      string    `json:"ticketId" db:"ticket_id"`
	Side          string    `json:"side" db:"side"`
	Ticker        string    `json:"ticker" db:"ticker"`
	Quantity      int       `json:"quantity" db:"qty"`
	OrderType     string    `json:"orderType" db:"order_type"`
	Price         float64   `json:"price" db:"price"`
	Solicited     bool      `json:"solicited" db:"solicited"`
	Timestamp     time.Time `json:"timestamp" db:"traded_at"`
	Notes         string    `json:"notes,omitempty" db:"notes"`
	FollowUpDate  string    `json:"followUpDate,omitempty" db:"follow_up_date"`
	Stage         string    `json:"stage,omitempty" db:"stage"`
	MeetingNeeded bool      `json:"meetingNeeded" db:"meeting_needed"`
}

// Record is a client entity. Every optional field may be empty.
type Record struct {
	Key           string  `json:"key"`
	FullName      string  `json:"fullName"`
	Email         string  `json:"email,omitempty"`
	Account       string  `json:"account,omitempty"`
	FollowUpDate  string  `json:"followUpDate,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	MeetingNeeded bool    `json:"meetingNeeded"`
	Trades        []Trade `json:"trades,omitempty"`
}

// Ticker returns the ticker of the most recent trade, or "".
func (r Record) Ticker() string {
	var latest *Trade
	for i := range r.Trades {
		if latest == nil || r.Trades[i].Timestamp.After(latest.Timestamp) {
			latest = &r.Trades[i]
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Ticker
}

// Field returns a named optional field. Unknown names yield "".
func (r Record) Field(name string) string {
	switch strings.ToLower(name) {
	case "email":
		return strings.TrimSpace(r.Email)
	case "account":
		return strings.TrimSpace(r.Account)
	case "follow_up_date", "followupdate", "follow-up":
		return strings.TrimSpace(r.FollowUpDate)
	case "stage":
		return strings.TrimSpace(r.Stage)
	case "ticker":
		return r.Ticker()
	case "name", "full_name":
		return strings.TrimSpace(r.FullName)
	}
	return ""
}

// MatchKind names the cascade stage that produced a resolution.
type MatchKind string

const (
	MatchExact    MatchKind = "EXACT"
	MatchPartial  MatchKind = "PARTIAL"
	MatchSemantic MatchKind = "SEMANTIC"
)

// ResolvedEntity is the single confident answer of one resolution call.
type ResolvedEntity struct {
	Record     Record    `json:"record"`
	MatchKind  MatchKind `json:"matchKind"`
	Confidence float64   `json:"confidence"`
}

// Quote is a market quote snapshot.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"changePct"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Open      float64   `json:"open"`
	PrevClose float64   `json:"prevClose"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeTicket is one trade as logged, together with the client columns of
// the blotter row it is stored in.
type TradeTicket struct {
	ClientName string `json:"clientName"`
	Email      string `json:"email,omitempty"`
	Account    string `json:"account,omitempty"`
	Trade
}
