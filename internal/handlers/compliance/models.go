package compliance

import "orqon-dispatch/internal/collaborators/knowledge"

// Profile is a client's compliance risk summary.
type Profile struct {
	Name              string      `json:"name"`
	Email             string      `json:"email,omitempty"`
	Account           string      `json:"account,omitempty"`
	RiskScore         int         `json:"riskScore"`
	Factors           []string    `json:"factors,omitempty"`
	TotalTrades       int         `json:"totalTrades"`
	Solicited         int         `json:"solicited"`
	Unsolicited       int         `json:"unsolicited"`
	MeetingsNeeded    int         `json:"meetingsNeeded"`
	ComplianceReviews int         `json:"complianceReviews"`
	RecentTrades      []TradeLine `json:"recentTrades,omitempty"`
}

type TradeLine struct {
	TicketID string `json:"ticketId"`
	Date     string `json:"date"`
	Side     string `json:"side"`
	Ticker   string `json:"ticker"`
	Quantity int    `json:"quantity"`
	Stage    string `json:"stage,omitempty"`
}

// RiskList is the payload of a high-risk client query.
type RiskList struct {
	MinScore int         `json:"minScore"`
	Clients  []RiskEntry `json:"clients"`
}

type RiskEntry struct {
	Name      string `json:"name"`
	RiskScore int    `json:"riskScore"`
}

// Guidance is the payload of a knowledge base answer.
type Guidance struct {
	Answer     string              `json:"answer"`
	Articles   []knowledge.Article `json:"articles"`
	Summarizer string              `json:"summarizer"`
}

const (
	summarizerLLM    = "llm"
	summarizerCanned = "canned"
)

const summarizePrompt = `You are a compliance assistant for a brokerage desk.
Answer the advisor's question using only the knowledge base excerpts provided.
Cite article titles in brackets. If the excerpts do not answer the question, say so.
Keep the answer under 150 words.`
