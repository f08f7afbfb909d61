package scheduling

import "orqon-dispatch/internal/collaborators/calendar"

// Booking is the payload of a created meeting or reminder.
type Booking struct {
	Kind       string         `json:"kind"`
	Event      calendar.Event `json:"event"`
	DateSource string         `json:"dateSource"`
	InviteSent bool           `json:"inviteSent"`
}

// Cancellation is the payload of a cancel request. Pending lists the events
// the user has to choose from when nothing was cancelled.
type Cancellation struct {
	Cancelled []calendar.Event `json:"cancelled"`
	Pending   []calendar.Event `json:"pending,omitempty"`
}

const (
	kindMeeting  = "meeting"
	kindReminder = "reminder"
)
