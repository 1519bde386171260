package source

import (
	"strings"
	"time"

	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
)

// WebFormPayload is a website contact form submission.
type WebFormPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Service string `json:"service"`
}

// WebForm normalizes contact form submissions.
type WebForm struct{}

// NewWebForm creates a web form source.
func NewWebForm() *WebForm { return &WebForm{} }

// Kind implements the source identity for push wiring.
func (w *WebForm) Kind() event.SourceKind { return event.SourceWebForm }

// Receive normalizes one form submission. The dedup signature rounds the
// submission time to the minute, so a double-click on the submit button
// collapses to one trigger.
func (w *WebForm) Receive(p WebFormPayload) (*event.TriggerEvent, error) {
	if p.Email == "" {
		return nil, &PayloadError{Field: "email", Reason: "required"}
	}
	if strings.TrimSpace(p.Message) == "" && strings.TrimSpace(p.Service) == "" {
		return nil, &PayloadError{Field: "message", Reason: "message or service required"}
	}

	raw := strings.TrimSpace(p.Message + "\n" + p.Service)
	e := event.New(event.SourceWebForm, time.Now(), raw, map[string]string{
		"client_name":       p.Name,
		"client_email":      p.Email,
		"service_requested": p.Service,
	})
	e.Signature = dedup.Signature(e)
	return e, nil
}
