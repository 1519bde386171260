package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clayforge/trigger/event"
)

func TestMailboxNormalization(t *testing.T) {
	client := &fakeMailClient{mails: []Mail{
		{From: "client@example.com", Subject: "Need content", Body: "a tiktok post please", ReceivedAt: time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)},
		{From: "other@example.com", Subject: "hi", Body: ""},
	}}
	m := NewMailbox(client)

	events, err := m.ProduceEvents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}

	e := events[0]
	if e.Source != event.SourceMailbox {
		t.Errorf("source = %s", e.Source)
	}
	if e.RawText != "Need content\na tiktok post please" {
		t.Errorf("raw text = %q", e.RawText)
	}
	if e.Field("sender") != "client@example.com" || e.Field("subject") != "Need content" {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.Signature == "" {
		t.Error("signature not set at normalization")
	}
	if !e.OccurredAt.Equal(client.mails[0].ReceivedAt) {
		t.Errorf("occurred at = %v", e.OccurredAt)
	}
	// Missing receive time falls back to detection time.
	if events[1].OccurredAt.IsZero() {
		t.Error("zero occurred at not defaulted")
	}
}

func TestSocialFeedNormalization(t *testing.T) {
	s := NewSocialFeed(&fakeFeedClient{mentions: []Mention{
		{Platform: "twitter", PostID: "99", Author: "fan", Text: "need help with marketing"},
	}})

	events, err := s.ProduceEvents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	e := events[0]
	if e.Field("platform") != "twitter" || e.Field("post_id") != "99" || e.Field("user") != "fan" {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.Signature == "" {
		t.Error("signature not set")
	}
}

func TestTelephonyCallThreshold(t *testing.T) {
	tel := NewTelephony(60 * time.Second)

	// Below the threshold: silently not a trigger.
	e, err := tel.ReceiveCall(CallPayload{CallSid: "CA1", From: "+15551234", CallDuration: 20, CallStatus: "completed"})
	if err != nil || e != nil {
		t.Fatalf("short call: event=%v err=%v", e, err)
	}

	e, err = tel.ReceiveCall(CallPayload{CallSid: "CA2", From: "+15551234", CallDuration: 120, CallStatus: "completed"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Field("caller") != "+15551234" || e.Field("call_sid") != "CA2" || e.Field("call_duration") != "120" {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.Field("trigger_type") != "potential_content_call" {
		t.Errorf("trigger_type = %q", e.Field("trigger_type"))
	}
	if e.RawText != "" {
		t.Errorf("bare call should carry no text, got %q", e.RawText)
	}
}

func TestTelephonyCallValidation(t *testing.T) {
	tel := NewTelephony(0)

	var pe *PayloadError
	if _, err := tel.ReceiveCall(CallPayload{From: "+1555", CallDuration: 90}); !errors.As(err, &pe) || pe.Field != "CallSid" {
		t.Errorf("missing sid: err = %v", err)
	}
	if _, err := tel.ReceiveCall(CallPayload{CallSid: "CA1", CallDuration: 90}); !errors.As(err, &pe) || pe.Field != "From" {
		t.Errorf("missing caller: err = %v", err)
	}
}

func TestTelephonyVoicemail(t *testing.T) {
	tel := NewTelephony(0)

	e, err := tel.ReceiveVoicemail(VoicemailPayload{
		CallSid: "CA3", From: "+15559876",
		TranscriptionText: "hi, we need a video for our product launch",
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.RawText != "hi, we need a video for our product launch" {
		t.Errorf("raw text = %q", e.RawText)
	}
	if e.Field("trigger_type") != "content_voicemail" {
		t.Errorf("trigger_type = %q", e.Field("trigger_type"))
	}

	var pe *PayloadError
	if _, err := tel.ReceiveVoicemail(VoicemailPayload{From: "+1555"}); !errors.As(err, &pe) || pe.Field != "TranscriptionText" {
		t.Errorf("empty transcription: err = %v", err)
	}
	if _, err := tel.ReceiveVoicemail(VoicemailPayload{TranscriptionText: "x"}); !errors.As(err, &pe) || pe.Field != "From" {
		t.Errorf("missing caller: err = %v", err)
	}
}

func TestCalendarReceive(t *testing.T) {
	cal := NewCalendar()

	p := CalendarPayload{ID: "evt-1", Summary: "Content planning", Description: "tiktok strategy"}
	p.Start.DateTime = "2026-09-05T14:00:00Z"
	e, err := cal.Receive(p)
	if err != nil {
		t.Fatal(err)
	}
	if e.RawText != "Content planning\ntiktok strategy" {
		t.Errorf("raw text = %q", e.RawText)
	}
	if e.Field("event_id") != "evt-1" || e.Field("event_start") != "2026-09-05T14:00:00Z" {
		t.Errorf("fields = %v", e.Fields)
	}
	if !e.OccurredAt.Equal(time.Date(2026, 9, 5, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("occurred at = %v", e.OccurredAt)
	}

	var pe *PayloadError
	if _, err := cal.Receive(CalendarPayload{Summary: "x"}); !errors.As(err, &pe) || pe.Field != "id" {
		t.Errorf("missing id: err = %v", err)
	}
	if _, err := cal.Receive(CalendarPayload{ID: "evt-2"}); !errors.As(err, &pe) || pe.Field != "summary" {
		t.Errorf("empty body: err = %v", err)
	}
	bad := CalendarPayload{ID: "evt-3", Summary: "x"}
	bad.Start.DateTime = "tomorrow-ish"
	if _, err := cal.Receive(bad); !errors.As(err, &pe) || pe.Field != "start.dateTime" {
		t.Errorf("bad start: err = %v", err)
	}
}

func TestWebFormReceive(t *testing.T) {
	form := NewWebForm()

	e, err := form.Receive(WebFormPayload{
		Name: "Dana", Email: "dana@example.com",
		Message: "looking for content", Service: "social media management",
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.Field("client_email") != "dana@example.com" || e.Field("service_requested") != "social media management" {
		t.Errorf("fields = %v", e.Fields)
	}
	if e.RawText != "looking for content\nsocial media management" {
		t.Errorf("raw text = %q", e.RawText)
	}

	var pe *PayloadError
	if _, err := form.Receive(WebFormPayload{Message: "x"}); !errors.As(err, &pe) || pe.Field != "email" {
		t.Errorf("missing email: err = %v", err)
	}
	if _, err := form.Receive(WebFormPayload{Email: "a@b.c", Message: "  "}); !errors.As(err, &pe) || pe.Field != "message" {
		t.Errorf("empty body: err = %v", err)
	}
}

func TestPollerSurvivesFailures(t *testing.T) {
	client := &fakeMailClient{
		mails: []Mail{{From: "a@b.c", Subject: "need content", Body: "x"}},
		err:   errors.New("imap connection reset"),
		// First poll fails, later polls succeed.
		failFirst: 1,
	}

	var mu sync.Mutex
	var delivered []*event.TriggerEvent
	p := &Poller{
		Source:   NewMailbox(client),
		Interval: 10 * time.Millisecond,
		Handler: func(_ context.Context, e *event.TriggerEvent) {
			mu.Lock()
			delivered = append(delivered, e)
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(delivered)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller never recovered from the failed poll")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	if got := client.calls.Load(); got < 2 {
		t.Errorf("poller stopped after %d polls", got)
	}
}

type fakeMailClient struct {
	mails     []Mail
	err       error
	failFirst int32
	calls     atomic.Int32
}

func (c *fakeMailClient) Unseen(context.Context) ([]Mail, error) {
	n := c.calls.Add(1)
	if c.err != nil && n <= c.failFirst {
		return nil, c.err
	}
	return c.mails, nil
}

type fakeFeedClient struct {
	mentions []Mention
}

func (c *fakeFeedClient) Mentions(context.Context) ([]Mention, error) {
	return c.mentions, nil
}
