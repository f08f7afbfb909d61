package conversational

// Capability is one line of the capability overview.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// Overview is the payload of the fallback answer.
type Overview struct {
	Capabilities []Capability `json:"capabilities"`
}

// DateTime is the payload of the date and time answer.
type DateTime struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
	TimeZone string `json:"timeZone"`
}

var capabilities = []Capability{
	{Name: "records", Description: "Look up client records, trades and email addresses", Example: "show records for Maria Lopez"},
	{Name: "tradelog", Description: "Log trades from a free-form note", Example: "log trade: Maria Lopez bought 100 TSLA at market, unsolicited"},
	{Name: "scheduling", Description: "Create reminders and client meetings", Example: "schedule a meeting with Wei Zhang tomorrow"},
	{Name: "emailsend", Description: "Draft and send client emails", Example: "email her about the rebalance"},
	{Name: "quote", Description: "Fetch and compare market quotes", Example: "compare apple vs tesla"},
	{Name: "compliance", Description: "Answer compliance questions and score client risk", Example: "what is churning"},
}
