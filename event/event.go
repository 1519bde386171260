// Package event defines the normalized trigger event and the workflow
// request types shared by every stage of the engine. Events are created
// once by a signal source and are read-only afterward.
package event

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies the channel a trigger event came from.
type SourceKind string

const (
	SourceClock     SourceKind = "clock"
	SourceMailbox   SourceKind = "mailbox"
	SourceTelephony SourceKind = "telephony"
	SourceSocial    SourceKind = "social"
	SourceCalendar  SourceKind = "calendar"
	SourceWebForm   SourceKind = "webform"
)

// Kinds lists every source kind, in pipeline wiring order.
func Kinds() []SourceKind {
	return []SourceKind{
		SourceClock, SourceMailbox, SourceTelephony,
		SourceSocial, SourceCalendar, SourceWebForm,
	}
}

// TriggerEvent is an immutable record of one real-world occurrence that
// may warrant a workflow. OccurredAt is the time of the underlying
// occurrence, not detection time. Fields carries source-specific metadata
// opaque to the core and passed through to the workflow executor.
type TriggerEvent struct {
	ID         string            `json:"id"`
	Source     SourceKind        `json:"source"`
	OccurredAt time.Time         `json:"occurredAt"`
	RawText    string            `json:"rawText,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Signature  string            `json:"signature"`
}

// New creates a trigger event with a fresh ID. The signature is derived
// by the source (see the dedup package) before the event enters the
// pipeline.
func New(source SourceKind, occurredAt time.Time, rawText string, fields map[string]string) *TriggerEvent {
	if fields == nil {
		fields = map[string]string{}
	}
	return &TriggerEvent{
		ID:         uuid.New().String(),
		Source:     source,
		OccurredAt: occurredAt,
		RawText:    rawText,
		Fields:     fields,
	}
}

// Field returns a structured field value, or "" when absent.
func (e *TriggerEvent) Field(key string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[key]
}

// Workflow types the engine dispatches. The content factory is the
// default for every reactive channel; the mastery engine handles
// planning-style scheduled jobs.
const (
	WorkflowContentFactory = "viral_content_factory"
	WorkflowMasteryEngine  = "mastery_content_engine"
)

// WorkflowRequest is the unit handed to the external workflow executor.
// Configuration always carries trigger provenance: trigger_source and
// trigger_event_id map back to exactly one TriggerEvent.
type WorkflowRequest struct {
	WorkflowType  string         `json:"workflowType"`
	Configuration map[string]any `json:"configuration"`
}

// TriggerEventID returns the provenance event ID from the configuration.
func (r *WorkflowRequest) TriggerEventID() string {
	id, _ := r.Configuration["trigger_event_id"].(string)
	return id
}
