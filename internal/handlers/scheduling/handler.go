// Package scheduling books client meetings and personal reminders, and
// cancels upcoming events.
package scheduling

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"orqon-dispatch/internal/collaborators/calendar"
	"orqon-dispatch/internal/collaborators/email"
	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/handlers"
	"orqon-dispatch/internal/intent"
	"orqon-dispatch/internal/models"
)

const Name = "scheduling"

var (
	// the verb must govern an event word within a few words: "cancel my 3pm meeting"
	cancelRequest = regexp.MustCompile(`(?i)\b(cancel|delete|remove)\s+(?:[\w:']+\s+){0,3}?(all|everything|meetings?|events?|reminders?|appointments?)\b`)
	cancelAll     = regexp.MustCompile(`(?i)\b(all|everything)\b`)
	reminderWord  = regexp.MustCompile(`(?i)\bremind(er|ers)?\b`)
	reminderTask  = regexp.MustCompile(`(?i)\b(?:remind me|reminder)\s+(?:to|about|for)\s+(.+)$`)
	inviteRequest = regexp.MustCompile(`(?i)\b(notify|invite|email|mail|send (?:an |the )?invit\w*)\b`)
	timePhrase    = regexp.MustCompile(`(?i)\s+(tomorrow|today|tonight|next week|in \d+ days?|on \w+day|next \w+day|this \w+day|at \d{1,2}(:\d{2})?\s*(am|pm)?|\d{4}-\d{2}-\d{2})\b.*$`)
)

const datePrompt = `You extract meeting times. Today is %s (%s). Reply with the requested start as "YYYY-MM-DD HH:MM" in 24-hour time, or NONE if the request names no time.`

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Handler struct {
	config   *Config
	calendar calendar.Service
	email    email.Service
	llm      llm.Provider
	logger   Logger
	now      func() time.Time
}

// NewHandler wires the handler. mail and provider may be nil: invites are then
// skipped and unparseable dates fall back to the default slot.
func NewHandler(config *Config, cal calendar.Service, mail email.Service, provider llm.Provider, log Logger) *Handler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Handler{
		config:   config,
		calendar: cal,
		email:    mail,
		llm:      provider,
		logger:   log,
		now:      time.Now,
	}
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Rank() int    { return h.config.Rank }

func (h *Handler) Matches(q *models.Query, _ models.SharedContext) bool {
	return q.Has(intent.Scheduling)
}

func (h *Handler) Handle(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	if cancelRequest.MatchString(q.Text) {
		return h.cancel(ctx, q, turn)
	}
	if reminderWord.MatchString(q.Text) {
		return h.reminder(ctx, q, turn)
	}
	return h.meeting(ctx, q, turn)
}

func (h *Handler) cancel(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	turn.Execute()
	upcoming, err := h.calendar.Upcoming(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return models.Answer(Name, string(intent.Scheduling), "You have no upcoming events to cancel.", Cancellation{}), nil
	}

	targets := upcoming
	if !cancelAll.MatchString(q.Text) {
		who := handlers.Fragment(q.Text, "with", "for")
		if who == "" {
			return h.askWhichEvent(upcoming), nil
		}
		targets = nil
		for _, ev := range upcoming {
			if handlers.MentionsName(ev.Summary, who) {
				targets = append(targets, ev)
				break
			}
		}
		if len(targets) == 0 {
			return &models.Outcome{
				Handler:      Name,
				Category:     string(intent.Scheduling),
				Kind:         models.OutcomeNotFound,
				ResponseText: fmt.Sprintf("I couldn't find an upcoming event with %s.", who),
			}, nil
		}
	}

	var cancelled []calendar.Event
	for _, ev := range targets {
		if err := h.calendar.CancelEvent(ctx, ev.ID); err != nil {
			h.logger.Warn("cancel stopped after failure", map[string]interface{}{
				"cancelled": len(cancelled),
				"remaining": len(targets) - len(cancelled),
				"error":     err.Error(),
			})
			return nil, err
		}
		cancelled = append(cancelled, ev)
	}

	text := fmt.Sprintf("Cancelled %q on %s.", cancelled[0].Summary, h.format(cancelled[0].Start))
	if len(cancelled) > 1 {
		text = fmt.Sprintf("Cancelled all %d upcoming events.", len(cancelled))
	}
	return models.Answer(Name, string(intent.Scheduling), text, Cancellation{Cancelled: cancelled}), nil
}

// askWhichEvent lists the upcoming events instead of picking one when a cancel
// request names neither a client nor "all".
func (h *Handler) askWhichEvent(upcoming []calendar.Event) *models.Outcome {
	const listed = 5
	var b strings.Builder
	b.WriteString("Which event should I cancel? Name the client (\"cancel my meeting with ...\") or say \"cancel all\". Upcoming:")
	for i, ev := range upcoming {
		if i == listed {
			fmt.Fprintf(&b, "\n- and %d more", len(upcoming)-listed)
			break
		}
		fmt.Fprintf(&b, "\n- %s on %s", ev.Summary, h.format(ev.Start))
	}
	return &models.Outcome{
		Handler:      Name,
		Category:     string(intent.Scheduling),
		Kind:         models.OutcomeDisambiguation,
		ResponseText: b.String(),
		Payload:      Cancellation{Pending: upcoming},
	}
}

func (h *Handler) reminder(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	turn.Execute()
	start, source := h.start(ctx, q.Text, "")

	summary := "Reminder"
	if m := reminderTask.FindStringSubmatch(q.Text); m != nil {
		if task := strings.TrimSpace(timePhrase.ReplaceAllString(" "+strings.TrimRight(m[1], ".!?"), "")); task != "" {
			summary = "Reminder: " + task
		}
	}

	ev, err := h.calendar.CreateEvent(ctx, calendar.Event{
		Summary:     summary,
		Description: q.Original,
		Start:       start,
		End:         start.Add(h.config.ReminderLength),
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("reminder created", map[string]interface{}{"eventId": ev.ID, "dateSource": string(source)})

	return models.Answer(Name, string(intent.Scheduling),
		fmt.Sprintf("Reminder set for %s: %s.", h.format(ev.Start), strings.TrimPrefix(summary, "Reminder: ")),
		Booking{Kind: kindReminder, Event: *ev, DateSource: string(source)}), nil
}

func (h *Handler) meeting(ctx context.Context, q *models.Query, turn *dispatch.Turn) (*models.Outcome, error) {
	category := string(intent.Scheduling)
	fragment := handlers.Fragment(q.Text, "with", "regarding", "for")

	var rec models.Record
	last := turn.Snapshot().LastResolvedEntity
	switch {
	case last != nil && (fragment == "" || handlers.MentionsName(fragment, last.Record.FullName)):
		rec = turn.Handoff().Record
	case fragment != "":
		res, err := turn.Resolve(ctx, fragment)
		if err != nil {
			return nil, err
		}
		if out := handlers.Unresolved(Name, category, fragment, res); out != nil {
			return out, nil
		}
		rec = res.Entity.Record
	default:
		turn.Execute()
		return &models.Outcome{
			Handler:      Name,
			Category:     category,
			Kind:         models.OutcomeNotFound,
			ResponseText: "Who should I schedule the meeting with?",
		}, nil
	}

	turn.Execute()
	if rec.Field("email") == "" {
		return handlers.MissingField(Name, category, rec, "email"), nil
	}

	start, source := h.start(ctx, q.Text, rec.FollowUpDate)
	ev, err := h.calendar.CreateEvent(ctx, calendar.Event{
		Summary:     "Meeting with " + rec.FullName,
		Description: q.Original,
		Start:       start,
		End:         start.Add(h.config.MeetingLength),
		Attendees:   []string{rec.Email},
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("meeting created", map[string]interface{}{
		"eventId":    ev.ID,
		"client":     rec.FullName,
		"dateSource": string(source),
	})

	text := fmt.Sprintf("Scheduled a meeting with %s on %s.", rec.FullName, h.format(ev.Start))
	booking := Booking{Kind: kindMeeting, Event: *ev, DateSource: string(source)}

	if h.email != nil && inviteRequest.MatchString(strings.ToLower(q.Text)) {
		if err := h.invite(ctx, rec, *ev); err != nil {
			// The event already exists.
			h.logger.Warn("invite email failed", map[string]interface{}{"eventId": ev.ID, "error": err.Error()})
			text += " The invitation email could not be sent."
		} else {
			booking.InviteSent = true
			text += fmt.Sprintf(" An invitation was sent to %s.", rec.Email)
		}
	}
	return models.Answer(Name, category, text, booking), nil
}

func (h *Handler) invite(ctx context.Context, rec models.Record, ev calendar.Event) error {
	subject := "Meeting invitation: " + h.format(ev.Start)
	body := fmt.Sprintf("Hi %s,<br><br>I've scheduled a meeting with you on %s.",
		html.EscapeString(firstName(rec.FullName)), html.EscapeString(h.format(ev.Start)))
	if ev.Link != "" {
		body += fmt.Sprintf(`<br><a href="%s">View in calendar</a>`, html.EscapeString(ev.Link))
	}
	body += "<br><br>Best regards"
	return h.email.Send(ctx, rec.Email, subject, body)
}

// start picks the event start: a time stated in the text, then the client's
// follow-up date, then the text-generation service, then tomorrow at the
// default hour.
func (h *Handler) start(ctx context.Context, text, followUp string) (time.Time, dateSource) {
	now := h.now().In(h.config.Location)
	if t, ok := parseStart(text, now, h.config.DefaultHour); ok {
		return t, fromText
	}
	if t, ok := parseFollowUp(followUp, h.config.Location, h.config.DefaultHour); ok && t.After(now) {
		return t, fromFollowUp
	}
	if h.llm != nil {
		prompt := fmt.Sprintf(datePrompt, now.Format("2006-01-02 15:04"), now.Weekday())
		reply, err := h.llm.Complete(ctx, prompt, text)
		if err != nil {
			h.logger.Warn("date extraction failed", map[string]interface{}{"error": err.Error()})
		} else if t, ok := parseLLMDate(reply, h.config.Location, h.config.DefaultHour); ok && t.After(now) {
			return t, fromLLM
		}
	}
	return atClock(midnight(now).AddDate(0, 0, 1), h.config.DefaultHour, 0), fromDefault
}

func (h *Handler) format(t time.Time) string {
	return t.In(h.config.Location).Format("Mon Jan 2 at 15:04")
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return full
}

var _ dispatch.Handler = (*Handler)(nil)
