// Package api exposes the engine's HTTP surface: push trigger webhooks,
// the schedule configuration API, and the execution query API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/registry"
	"github.com/clayforge/trigger/schedule"
	"github.com/clayforge/trigger/source"
)

// Dispatcher is the slice of the engine the handlers need: hand in an
// event, get back an execution ID or "" for a drop.
type Dispatcher interface {
	Handle(ctx context.Context, e *event.TriggerEvent) (string, error)
}

// Handler provides the engine's HTTP endpoints.
type Handler struct {
	dispatcher Dispatcher
	schedules  *schedule.Registry
	executions *registry.Registry
	telephony  *source.Telephony
	calendar   *source.Calendar
	webform    *source.WebForm
	logger     *slog.Logger
}

// NewHandler creates the HTTP handler. logger may be nil.
func NewHandler(d Dispatcher, schedules *schedule.Registry, executions *registry.Registry,
	telephony *source.Telephony, calendar *source.Calendar, webform *source.WebForm,
	logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: d,
		schedules:  schedules,
		executions: executions,
		telephony:  telephony,
		calendar:   calendar,
		webform:    webform,
		logger:     logger,
	}
}

// RegisterRoutes registers all engine routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/triggers/telephony/call", h.telephonyCall)
	mux.HandleFunc("POST /api/triggers/telephony/voicemail", h.telephonyVoicemail)
	mux.HandleFunc("POST /api/triggers/calendar/event", h.calendarEvent)
	mux.HandleFunc("POST /api/triggers/webform/contact", h.webformContact)

	mux.HandleFunc("POST /api/schedules", h.createSchedule)
	mux.HandleFunc("GET /api/schedules", h.listSchedules)
	mux.HandleFunc("GET /api/schedules/{id}", h.getSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/pause", h.pauseSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/resume", h.resumeSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", h.deleteSchedule)

	mux.HandleFunc("GET /api/executions", h.listExecutions)
	mux.HandleFunc("GET /api/executions/{id}", h.getExecution)
}

// --- push trigger endpoints ---

func (h *Handler) telephonyCall(w http.ResponseWriter, r *http.Request) {
	var p source.CallPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := h.telephony.ReceiveCall(p)
	h.dispatchPush(w, r, e, err)
}

func (h *Handler) telephonyVoicemail(w http.ResponseWriter, r *http.Request) {
	var p source.VoicemailPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := h.telephony.ReceiveVoicemail(p)
	h.dispatchPush(w, r, e, err)
}

func (h *Handler) calendarEvent(w http.ResponseWriter, r *http.Request) {
	var p source.CalendarPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := h.calendar.Receive(p)
	h.dispatchPush(w, r, e, err)
}

func (h *Handler) webformContact(w http.ResponseWriter, r *http.Request) {
	var p source.WebFormPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := h.webform.Receive(p)
	h.dispatchPush(w, r, e, err)
}

// dispatchPush finishes a push-source request: 400 for malformed
// payloads, 200 with dropped=true when nothing warrants a workflow,
// 202 with the execution ID when one was dispatched. The handler never
// waits for the execution itself.
func (h *Handler) dispatchPush(w http.ResponseWriter, r *http.Request, e *event.TriggerEvent, err error) {
	if err != nil {
		var perr *source.PayloadError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error(), "field": perr.Field})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if e == nil {
		writeJSON(w, http.StatusOK, map[string]any{"dropped": true})
		return
	}

	execID, err := h.dispatcher.Handle(r.Context(), e)
	if err != nil {
		h.logger.Error("push dispatch failed", "event_id", e.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if execID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"dropped": true, "event_id": e.ID})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"event_id": e.ID, "execution_id": execID})
}

// --- schedule configuration endpoints ---

type createScheduleRequest struct {
	Name         string              `json:"name"`
	Recurrence   schedule.Recurrence `json:"recurrence"`
	WorkflowType string              `json:"workflowType"`
	Template     map[string]string   `json:"template"`
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	job, err := h.schedules.Add(r.Context(), req.Name, req.Recurrence, req.WorkflowType, req.Template)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	jobs := h.schedules.List()
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs, "total": len(jobs)})
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	job, err := h.schedules.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleStatusChange(w, r, h.schedules.Pause)
}

func (h *Handler) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleStatusChange(w, r, h.schedules.Resume)
}

func (h *Handler) scheduleStatusChange(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	id := r.PathValue("id")
	if err := fn(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	job, err := h.schedules.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.schedules.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- execution query endpoints ---

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.Filter{
		Status: registry.Status(q.Get("status")),
		Source: event.SourceKind(q.Get("source")),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since, want RFC 3339"})
			return
		}
		f.Since = since
	}

	recs := h.executions.List(f)
	writeJSON(w, http.StatusOK, map[string]any{"items": recs, "total": len(recs)})
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := h.executions.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
