package intent

import (
	"context"
	"regexp"
	"strings"

	"orqon-dispatch/internal/models"
)

var (
	greetingPhrases = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "greetings", "howdy"}

	identityPhrases = []string{
		"who are you", "what are you", "who r u", "what r u",
		"tell me about yourself", "introduce yourself",
		"what can you do", "what do you do", "your name",
		"are you ai", "are you a bot", "are you human",
	}

	dateTimePhrases = []string{
		"what is date", "what is time", "what is the date", "what is the time",
		"whats the date", "whats the time", "what's the date", "what's the time",
		"current date", "current time", "what date", "what time",
		"today date", "todays date", "today's date", "date and time",
	}

	gratitudePhrases = []string{"thank you", "thanks", "thx", "ty", "appreciate it", "appreciate"}

	tradeLogPhrases = []string{
		"log trade", "log a trade", "trade ticket", "ticket reference", "emergency log",
		"client called", "market order", "limit order", "stop order",
		"unsolicited", "solicited", "compliance review",
	}
	tradeLogLongWords = []string{"client", "trade", "shares", "ticker", "stock"}
	// side followed by a quantity, e.g. "bought 200 shares", "sell 1,500 TSLA"
	tradeSideQty = regexp.MustCompile(`\b(bought|sold|buy|sell)\s+\d[\d,]*\b`)

	schedulingPhrases = []string{
		"reminder", "remind me", "schedule", "meeting", "calendar",
		"set me a", "add to calendar", "google calendar",
		"cancel meeting", "delete meeting", "cancel all", "remove meeting",
		"cancel the meeting", "cancel my meeting", "cancel meetings",
	}

	emailLookupPhrases = []string{
		"what is", "whats", "what's", "show me the email", "get the email", "find email",
		"tell me the email", "give me the email", "display email", "email of",
		"email address", "email for", "email id",
	}

	lookupVerbs = []string{"show", "get", "find", "tell me", "give me", "display", "look up", "lookup"}

	emailSendPhrases = []string{
		"mail her", "mail him", "mail them", "email her", "email him", "email them",
		"send email", "send mail", "send a mail", "send an email", "send the email",
		"lets mail", "let's mail", "lets gmail", "let's gmail", "lets email", "let's email",
		"write to", "compose email", "draft email", "notify via email",
	}
	emailVerbName     = regexp.MustCompile(`\b(?:gmail|email|mail)\s+([a-z]+)`)
	emailNameStopword = map[string]bool{
		"the": true, "a": true, "an": true, "it": true, "me": true, "us": true,
		"regarding": true, "about": true, "with": true, "of": true, "for": true,
		"address": true, "id": true, "is": true, "to": true, "and": true, "on": true,
	}

	dataPhrases = []string{
		"data", "table", "csv", "excel", "spreadsheet", "blotter",
		"client", "clients", "trade", "trades", "account", "accounts",
		"record", "records", "follow up", "follow-up", "followup",
	}
	dataVerbs = []string{"show", "list", "display", "open", "view"}

	financePhrases = []string{
		"stock", "stocks", "price", "prices", "ticker", "share", "quote", "trading",
		"market", "nasdaq", "nyse", "dow", "index",
		"aapl", "apple", "tsla", "tesla", "msft", "microsoft",
		"googl", "google", "alphabet", "amzn", "amazon", "rivn", "rivian",
		"nvda", "nvidia", "meta", "facebook", "ibm", "pltr", "palantir",
		"duke", "duk", "delta", "dal",
		"bank", "finance", "invest", "investment", "portfolio", "dividend",
		"earnings", "revenue", "profit", "valuation", "pe ratio",
		"market cap", "analyst", "rating", "forecast",
	}

	compliancePhrases = []string{
		"compliance", "regulation", "regulations", "rule", "rules", "policy", "policies",
		"churning", "risk", "guideline", "guidelines", "procedure", "procedures", "define",
		"profile", "history", "client background", "past trades",
	}
)

// KeywordClassifier recognises categories from fixed phrase lists. It is
// deterministic and never fails.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify returns every matching category in precedence order, each with
// confidence 1.
func (k *KeywordClassifier) Classify(_ context.Context, text string) ([]models.Signal, error) {
	p := pad(text)
	var out []models.Signal
	add := func(c models.Category) {
		out = append(out, models.Signal{Category: c, Confidence: 1.0})
	}

	words := p.words()
	if p.hasAny(greetingPhrases...) && words <= 3 {
		add(Greeting)
	}
	if p.hasAny(identityPhrases...) {
		add(Identity)
	}
	if p.hasAny(dateTimePhrases...) {
		add(DateTime)
	}
	if p.hasAny(gratitudePhrases...) && words <= 5 {
		add(Gratitude)
	}

	if isTradeLog(p, words) {
		add(TradeLog)
	}
	if p.hasAny(schedulingPhrases...) {
		add(Scheduling)
	}

	mentionsEmail := p.hasPrefixOf("email") || p.hasPrefixOf("mail") || p.hasPrefixOf("e-mail") || strings.Contains(string(p), "'s email")
	lookup := mentionsEmail && (p.hasAny(emailLookupPhrases...) || p.hasAny(lookupVerbs...) || strings.Contains(string(p), "'s email"))
	if lookup {
		add(EmailLookup)
	}
	if !lookup && isEmailSend(p) {
		add(EmailSend)
	}

	if p.hasAny(dataPhrases...) || (p.hasAny(dataVerbs...) && p.hasAny("file", "files", "sheet")) {
		add(Data)
	}
	if p.hasAny(financePhrases...) {
		add(Finance)
	}
	if p.hasAny(compliancePhrases...) {
		add(Compliance)
	}

	return out, nil
}

func isTradeLog(p padded, words int) bool {
	if words > 15 && p.hasAny(tradeLogLongWords...) {
		return true
	}
	if p.hasAny(tradeLogPhrases...) {
		return true
	}
	return tradeSideQty.MatchString(string(p))
}

func isEmailSend(p padded) bool {
	if p.hasAny(emailSendPhrases...) {
		return true
	}
	for _, m := range emailVerbName.FindAllStringSubmatch(string(p), -1) {
		if !emailNameStopword[m[1]] {
			return true
		}
	}
	return false
}
