// Package calendar creates, lists and cancels calendar events.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "orqon-dispatch/internal/common/errors"
	apphttp "orqon-dispatch/internal/common/http"
	"orqon-dispatch/internal/common/metrics"
)

// Event is a calendar entry. Attendees is empty for personal reminders.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// Service is the calendar collaborator. CreateEvent and CancelEvent have side
// effects and are issued once.
type Service interface {
	CreateEvent(ctx context.Context, ev Event) (*Event, error)
	CancelEvent(ctx context.Context, id string) error
	Upcoming(ctx context.Context, limit int) ([]Event, error)
}

// GoogleService talks to the Google Calendar v3 REST API.
type GoogleService struct {
	client     *apphttp.Client
	baseURL    string
	calendarID string
	token      string
	timeZone   string
	now        func() time.Time
}

func NewGoogleService(baseURL, calendarID, token, timeZone string, timeout time.Duration) *GoogleService {
	if calendarID == "" {
		calendarID = "primary"
	}
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &GoogleService{
		client:     apphttp.NewClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		calendarID: calendarID,
		token:      token,
		timeZone:   timeZone,
		now:        time.Now,
	}
}

type googleTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email string `json:"email"`
}

type googleEvent struct {
	ID          string           `json:"id,omitempty"`
	Summary     string           `json:"summary"`
	Description string           `json:"description,omitempty"`
	Start       googleTime       `json:"start"`
	End         googleTime       `json:"end"`
	Attendees   []googleAttendee `json:"attendees,omitempty"`
	HTMLLink    string           `json:"htmlLink,omitempty"`
	Status      string           `json:"status,omitempty"`
}

func (g *GoogleService) eventsURL() string {
	return fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(g.calendarID))
}

func (g *GoogleService) newRequest(ctx context.Context, method, u string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *GoogleService) CreateEvent(ctx context.Context, ev Event) (*Event, error) {
	in := googleEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       googleTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: g.timeZone},
		End:         googleTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: g.timeZone},
	}
	for _, a := range ev.Attendees {
		in.Attendees = append(in.Attendees, googleAttendee{Email: a})
	}

	req, err := g.newRequest(ctx, http.MethodPost, g.eventsURL(), in)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	var out googleEvent
	err = g.client.DoJSON(ctx, req, &out)
	metrics.ObserveCall("calendar", err)
	if err != nil {
		return nil, apperrors.NewUpstreamError("calendar", "create_event", err)
	}
	created := fromGoogle(out)
	return &created, nil
}

func (g *GoogleService) CancelEvent(ctx context.Context, id string) error {
	req, err := g.newRequest(ctx, http.MethodDelete, g.eventsURL()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	err = g.client.DoJSON(ctx, req, nil)
	metrics.ObserveCall("calendar", err)
	if err != nil {
		return apperrors.NewUpstreamError("calendar", "cancel_event", err).WithMetadata("eventId", id)
	}
	return nil
}

// Upcoming lists future events, soonest first. It is retried once.
func (g *GoogleService) Upcoming(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("timeMin", g.now().UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", fmt.Sprint(limit))

	var out struct {
		Items []googleEvent `json:"items"`
	}
	err := apperrors.RetryOnce(ctx, func(ctx context.Context) error {
		req, err := g.newRequest(ctx, http.MethodGet, g.eventsURL()+"?"+q.Encode(), nil)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		err = g.client.DoJSON(ctx, req, &out)
		metrics.ObserveCall("calendar", err)
		if err != nil {
			return apperrors.NewUpstreamError("calendar", "list_events", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(out.Items))
	for _, item := range out.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, fromGoogle(item))
	}
	return events, nil
}

func fromGoogle(g googleEvent) Event {
	ev := Event{ID: g.ID, Summary: g.Summary, Description: g.Description, Link: g.HTMLLink}
	ev.Start, _ = time.Parse(time.RFC3339, g.Start.DateTime)
	ev.End, _ = time.Parse(time.RFC3339, g.End.DateTime)
	for _, a := range g.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev
}

// MemoryService keeps events in process. It backs demos and tests.
type MemoryService struct {
	mu     sync.Mutex
	events map[string]Event
	now    func() time.Time
}

func NewMemoryService() *MemoryService {
	return &MemoryService{events: make(map[string]Event), now: time.Now}
}

func (m *MemoryService) CreateEvent(_ context.Context, ev Event) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events[ev.ID] = ev
	return &ev, nil
}

func (m *MemoryService) CancelEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return apperrors.NewUpstreamError("calendar", "cancel_event", fmt.Errorf("event %s not found", id))
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryService) Upcoming(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []Event
	for _, ev := range m.events {
		if ev.End.After(now) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
