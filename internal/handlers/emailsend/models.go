package emailsend

// Draft is a composed email and the payload of a sent one.
type Draft struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Composer string `json:"composer"`
}

const (
	composerLLM      = "llm"
	composerTemplate = "template"
)

const composePrompt = `You write short, professional emails from a financial advisor to a client.
Reply with JSON only: {"to": "<recipient email>", "subject": "<subject>", "body": "<plain text body with \n line breaks>"}.
Do not include a signature. Do not promise returns or give investment advice.`
