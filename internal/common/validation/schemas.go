package validation

// ChatRequestSchema describes the body of POST /api/chat and WebSocket messages.
const ChatRequestSchema = `{
  "type": "object",
  "properties": {
    "text":       {"type": "string", "minLength": 1},
    "session_id": {"type": "string", "minLength": 1, "maxLength": 128}
  },
  "required": ["text", "session_id"]
}`

// TradeTicketsSchema describes the trades the text-generation service extracts
// from a free-form trade log.
const TradeTicketsSchema = `{
  "type": "object",
  "properties": {
    "trades": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "ticket_id":      {"type": "string"},
          "client_name":    {"type": "string", "minLength": 1},
          "email":          {"type": "string"},
          "account":        {"type": "string"},
          "side":           {"type": "string", "enum": ["Buy", "Sell", "BUY", "SELL", "buy", "sell"]},
          "ticker":         {"type": "string", "minLength": 1},
          "quantity":       {"type": "number", "minimum": 0},
          "order_type":     {"type": "string"},
          "price":          {"type": ["number", "null"]},
          "solicited":      {"type": "boolean"},
          "notes":          {"type": "string"},
          "follow_up_date": {"type": "string"},
          "stage":          {"type": "string"},
          "meeting_needed": {"type": "boolean"}
        },
        "required": ["client_name", "side", "ticker", "quantity"]
      }
    }
  },
  "required": ["trades"]
}`

// EmailDraftSchema describes a composed email.
const EmailDraftSchema = `{
  "type": "object",
  "properties": {
    "to":      {"type": "string"},
    "subject": {"type": "string", "minLength": 1, "maxLength": 200},
    "body":    {"type": "string", "minLength": 1}
  },
  "required": ["subject", "body"]
}`

// IntentSchema describes the categories returned by the text-generation
// classifier.
const IntentSchema = `{
  "type": "object",
  "properties": {
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "category":   {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["category"]
      }
    }
  },
  "required": ["categories"]
}`
