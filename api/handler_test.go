package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/registry"
	"github.com/clayforge/trigger/schedule"
	"github.com/clayforge/trigger/source"
)

// fakeDispatcher accepts everything containing "need" and drops the rest.
type fakeDispatcher struct {
	handled []*event.TriggerEvent
}

func (d *fakeDispatcher) Handle(_ context.Context, e *event.TriggerEvent) (string, error) {
	d.handled = append(d.handled, e)
	if strings.Contains(strings.ToLower(e.RawText), "need") {
		return "exec-" + e.ID, nil
	}
	return "", nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeDispatcher, *schedule.Registry, *registry.Registry) {
	t.Helper()
	d := &fakeDispatcher{}
	schedules := schedule.NewRegistry(nil, nil, schedule.DefaultTickInterval, nil)
	executions := registry.New(nil)
	h := NewHandler(d, schedules, executions,
		source.NewTelephony(60*time.Second), source.NewCalendar(), source.NewWebForm(), nil)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, d, schedules, executions
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestVoicemailDispatched(t *testing.T) {
	srv, d, _, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/api/triggers/telephony/voicemail",
		`{"CallSid":"CA1","From":"+15551234","TranscriptionText":"we need a video made"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["execution_id"] == "" || out["event_id"] == "" {
		t.Errorf("body = %v", out)
	}
	if len(d.handled) != 1 || d.handled[0].Source != event.SourceTelephony {
		t.Errorf("dispatcher saw %v", d.handled)
	}
}

func TestWebFormDropped(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/api/triggers/webform/contact",
		`{"name":"Sam","email":"sam@example.com","message":"unsubscribe me"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out["dropped"] != true {
		t.Errorf("body = %v", out)
	}
}

func TestShortCallDropped(t *testing.T) {
	srv, d, _, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/api/triggers/telephony/call",
		`{"CallSid":"CA2","From":"+15551234","CallDuration":15,"CallStatus":"completed"}`)
	if resp.StatusCode != http.StatusOK || out["dropped"] != true {
		t.Fatalf("status = %d body = %v", resp.StatusCode, out)
	}
	if len(d.handled) != 0 {
		t.Error("short call reached the dispatcher")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	// Valid JSON, missing a required field.
	resp, out := postJSON(t, srv.URL+"/api/triggers/telephony/voicemail",
		`{"From":"+15551234"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out["field"] != "TranscriptionText" {
		t.Errorf("body = %v", out)
	}

	// Not JSON at all.
	resp, _ = postJSON(t, srv.URL+"/api/triggers/calendar/event", `{{{`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCalendarEventAccepted(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/api/triggers/calendar/event",
		`{"id":"evt-1","summary":"need content brainstorm","start":{"dateTime":"2026-09-05T14:00:00Z"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d body = %v", resp.StatusCode, out)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, created := postJSON(t, srv.URL+"/api/schedules",
		`{"name":"daily-content","recurrence":{"kind":"daily","at":"09:00"},"workflowType":"viral_content_factory"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body = %v", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no job id in %v", created)
	}

	resp, listed := getJSON(t, srv.URL+"/api/schedules")
	if resp.StatusCode != http.StatusOK || listed["total"] != float64(1) {
		t.Errorf("list = %v", listed)
	}

	resp, paused := postJSON(t, srv.URL+"/api/schedules/"+id+"/pause", ``)
	if resp.StatusCode != http.StatusOK || paused["status"] != "paused" {
		t.Errorf("pause = %d %v", resp.StatusCode, paused)
	}

	resp, resumed := postJSON(t, srv.URL+"/api/schedules/"+id+"/resume", ``)
	if resp.StatusCode != http.StatusOK || resumed["status"] != "active" {
		t.Errorf("resume = %d %v", resp.StatusCode, resumed)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/schedules/"+id, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}

	resp, _ = getJSON(t, srv.URL+"/api/schedules/"+id)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d", resp.StatusCode)
	}
}

func TestScheduleValidationErrors(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/schedules",
		`{"name":"","recurrence":{"kind":"daily","at":"09:00"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/schedules",
		`{"name":"bad","recurrence":{"kind":"daily","at":"not-a-time"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad recurrence = %d", resp.StatusCode)
	}
}

func TestExecutionQueries(t *testing.T) {
	srv, _, _, executions := newTestServer(t)

	e := event.New(event.SourceMailbox, time.Now(), "need content", nil)
	rec := executions.Create(e, event.WorkflowContentFactory)
	done := executions.Create(event.New(event.SourceSocial, time.Now(), "need content", nil), event.WorkflowContentFactory)
	_ = executions.Transition(done.ExecutionID, registry.StatusExecuting, "")
	_ = executions.Transition(done.ExecutionID, registry.StatusCompleted, "ok")

	resp, out := getJSON(t, srv.URL+"/api/executions")
	if resp.StatusCode != http.StatusOK || out["total"] != float64(2) {
		t.Errorf("list = %v", out)
	}

	resp, out = getJSON(t, srv.URL+"/api/executions?status=completed")
	if resp.StatusCode != http.StatusOK || out["total"] != float64(1) {
		t.Errorf("status filter = %v", out)
	}

	resp, out = getJSON(t, srv.URL+"/api/executions?source=mailbox&limit=5")
	if resp.StatusCode != http.StatusOK || out["total"] != float64(1) {
		t.Errorf("source filter = %v", out)
	}

	resp, _ = getJSON(t, srv.URL+"/api/executions?limit=banana")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}

	resp, got := getJSON(t, srv.URL+"/api/executions/"+rec.ExecutionID)
	if resp.StatusCode != http.StatusOK || got["executionId"] != rec.ExecutionID {
		t.Errorf("get = %v", got)
	}

	resp, _ = getJSON(t, srv.URL+"/api/executions/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown execution = %d", resp.StatusCode)
	}
}
