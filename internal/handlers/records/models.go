package records

// Table is the structured payload of a records answer.
type Table struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Footer  string     `json:"footer,omitempty"`
}

// EmailAnswer is the payload of an email lookup.
type EmailAnswer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

var (
	clientHeaders = []string{"Client", "Email", "Account", "Stage", "Follow-up", "Meeting needed"}
	tradeHeaders  = []string{"Ticket", "Date", "Side", "Ticker", "Qty", "Price", "Solicited", "Stage"}
)
