package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged and the affected collector keeps
// working unregistered; measurement calls never fail.
type PrometheusSink struct {
	eventsReceived  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	dispatched      *prometheus.CounterVec
	inFlight        prometheus.Gauge
	execDuration    *prometheus.HistogramVec
	schedulerTicks  prometheus.Counter
	jobsFired       prometheus.Counter
	sourcePollError *prometheus.CounterVec
}

// NewPrometheusSink creates a sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_events_received_total",
			Help: "Trigger events entering the pipeline, by source kind.",
		}, []string{"source"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_events_dropped_total",
			Help: "Trigger events dropped before dispatch, by source and reason.",
		}, []string{"source", "reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_executions_dispatched_total",
			Help: "Execution records created, by source and workflow type.",
		}, []string{"source", "workflow_type"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trigger_executions_in_flight",
			Help: "Executions currently running.",
		}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trigger_execution_duration_seconds",
			Help:    "Workflow execution duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		schedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trigger_scheduler_ticks_total",
			Help: "Schedule registry evaluation passes.",
		}),
		jobsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trigger_scheduler_jobs_fired_total",
			Help: "Schedule jobs fired.",
		}),
		sourcePollError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_source_poll_errors_total",
			Help: "Failed polls, by source kind.",
		}, []string{"source"}),
	}

	for _, c := range []prometheus.Collector{
		s.eventsReceived, s.eventsDropped, s.dispatched, s.inFlight,
		s.execDuration, s.schedulerTicks, s.jobsFired, s.sourcePollError,
	} {
		if err := reg.Register(c); err != nil {
			slog.Warn("metrics collector registration failed", "error", err)
		}
	}
	return s
}

func (s *PrometheusSink) EventReceived(source string) {
	s.eventsReceived.WithLabelValues(source).Inc()
}

func (s *PrometheusSink) EventDropped(source, reason string) {
	s.eventsDropped.WithLabelValues(source, reason).Inc()
}

func (s *PrometheusSink) ExecutionDispatched(source, workflowType string) {
	s.dispatched.WithLabelValues(source, workflowType).Inc()
}

func (s *PrometheusSink) ExecutionStarted() {
	s.inFlight.Inc()
}

func (s *PrometheusSink) ExecutionFinished(outcome string, duration time.Duration) {
	s.inFlight.Dec()
	s.execDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (s *PrometheusSink) SchedulerTick(fired int) {
	s.schedulerTicks.Inc()
	s.jobsFired.Add(float64(fired))
}

func (s *PrometheusSink) SourcePollError(source string) {
	s.sourcePollError.WithLabelValues(source).Inc()
}
