// internal/common/errors/handler.go
package errors

// ErrorHandler converts errors caught at the handler and dispatcher boundary
// into safe user-facing text and a single structured log line.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err with the given fields and returns the message to show the user.
func (h *ErrorHandler) Handle(err error, fields map[string]interface{}) (*StandardError, string) {
	stdErr := Normalize(err)

	logFields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range fields {
		logFields[k] = v
	}
	for k, v := range stdErr.Metadata {
		logFields[k] = v
	}
	h.logger.Error("query failed", logFields)

	return stdErr, UserMessage(stdErr)
}

// UserMessage returns text that is safe to show to the user. It never contains
// error details, collaborator responses or credentials.
func UserMessage(err error) string {
	stdErr := Normalize(err)
	if stdErr == nil {
		return ""
	}

	switch stdErr.Code {
	case ErrCodeValidationFailed:
		return "I couldn't read that request. Please send a non-empty message."
	case ErrCodeRoutingExhausted:
		return "Sorry, I don't know how to help with that yet."
	case ErrCodeUpstreamTimeout:
		return "Sorry, one of the services I rely on took too long to answer. Please try again in a moment."
	case ErrCodeUpstreamFailed:
		return "Sorry, one of the services I rely on is unavailable right now. Please try again shortly."
	case ErrCodeRecordSourceFailed:
		return "Sorry, I can't reach the client records right now. Please try again shortly."
	case ErrCodeSessionBusy:
		return "Sorry, I'm still working on your previous request. Please try again in a moment."
	default:
		return "Sorry, something went wrong while handling your request."
	}
}
