package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
)

// DefaultCallDurationThreshold separates substantial calls from
// hang-ups and wrong numbers. Shorter calls are not normalized at all.
const DefaultCallDurationThreshold = 60 * time.Second

// CallPayload is the inbound call webhook body, Twilio-shaped.
type CallPayload struct {
	CallSid      string `json:"CallSid"`
	From         string `json:"From"`
	CallDuration int    `json:"CallDuration"` // seconds
	CallStatus   string `json:"CallStatus"`
}

// VoicemailPayload is the voicemail webhook body, Twilio-shaped.
type VoicemailPayload struct {
	CallSid           string `json:"CallSid"`
	From              string `json:"From"`
	TranscriptionText string `json:"TranscriptionText"`
}

// Telephony normalizes call and voicemail webhooks. It is a push source:
// each receive yields exactly one event or a structured rejection.
type Telephony struct {
	threshold time.Duration
}

// NewTelephony creates a telephony source. A non-positive threshold
// falls back to DefaultCallDurationThreshold.
func NewTelephony(threshold time.Duration) *Telephony {
	if threshold <= 0 {
		threshold = DefaultCallDurationThreshold
	}
	return &Telephony{threshold: threshold}
}

// Kind implements the source identity for push wiring.
func (t *Telephony) Kind() event.SourceKind { return event.SourceTelephony }

// ReceiveCall normalizes a completed-call webhook. Calls shorter than
// the duration threshold return (nil, nil): nothing to trigger, not an
// error. The event carries no free text unless the provider attached a
// transcription, so whether a bare call is actionable stays a classifier
// policy decision.
func (t *Telephony) ReceiveCall(p CallPayload) (*event.TriggerEvent, error) {
	if p.CallSid == "" {
		return nil, &PayloadError{Field: "CallSid", Reason: "required"}
	}
	if p.From == "" {
		return nil, &PayloadError{Field: "From", Reason: "required"}
	}
	if time.Duration(p.CallDuration)*time.Second < t.threshold {
		return nil, nil
	}

	e := event.New(event.SourceTelephony, time.Now(), "", map[string]string{
		"caller":        p.From,
		"call_sid":      p.CallSid,
		"call_duration": strconv.Itoa(p.CallDuration),
		"call_status":   p.CallStatus,
		"trigger_type":  "potential_content_call",
	})
	e.Signature = dedup.Signature(e)
	return e, nil
}

// ReceiveVoicemail normalizes a voicemail-transcription webhook.
func (t *Telephony) ReceiveVoicemail(p VoicemailPayload) (*event.TriggerEvent, error) {
	if p.From == "" {
		return nil, &PayloadError{Field: "From", Reason: "required"}
	}
	if strings.TrimSpace(p.TranscriptionText) == "" {
		return nil, &PayloadError{Field: "TranscriptionText", Reason: "required"}
	}

	callSid := p.CallSid
	if callSid == "" {
		// Some providers omit the sid on transcription callbacks; fall
		// back to caller + minute so retries still collapse.
		callSid = p.From + "@" + time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	}

	e := event.New(event.SourceTelephony, time.Now(), p.TranscriptionText, map[string]string{
		"caller":       p.From,
		"call_sid":     callSid,
		"trigger_type": "content_voicemail",
	})
	e.Signature = dedup.Signature(e)
	return e, nil
}
