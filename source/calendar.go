package source

import (
	"strings"
	"time"

	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
)

// CalendarPayload is the calendar webhook body, Google-Calendar-shaped:
// the start time nests under start.dateTime.
type CalendarPayload struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       struct {
		DateTime string `json:"dateTime"`
	} `json:"start"`
}

// Calendar normalizes calendar event webhooks.
type Calendar struct{}

// NewCalendar creates a calendar source.
func NewCalendar() *Calendar { return &Calendar{} }

// Kind implements the source identity for push wiring.
func (c *Calendar) Kind() event.SourceKind { return event.SourceCalendar }

// Receive normalizes one calendar event webhook. The dedup signature
// covers (event id, start time) so a rescheduled event triggers again
// while a webhook retry does not.
func (c *Calendar) Receive(p CalendarPayload) (*event.TriggerEvent, error) {
	if p.ID == "" {
		return nil, &PayloadError{Field: "id", Reason: "required"}
	}
	if p.Summary == "" && p.Description == "" {
		return nil, &PayloadError{Field: "summary", Reason: "summary or description required"}
	}

	occurred := time.Now()
	start := p.Start.DateTime
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, &PayloadError{Field: "start.dateTime", Reason: "not RFC 3339"}
		}
		occurred = t
	}

	raw := strings.TrimSpace(p.Summary + "\n" + p.Description)
	e := event.New(event.SourceCalendar, occurred, raw, map[string]string{
		"event_id":    p.ID,
		"event_title": p.Summary,
		"event_start": start,
	})
	e.Signature = dedup.Signature(e)
	return e, nil
}
