// Package metrics defines the engine's metrics sink. Components report
// through the Sink interface so the Prometheus dependency stays at the
// edge; tests and library embedders use Noop.
package metrics

import "time"

// Drop reasons reported with EventDropped.
const (
	DropNotActionable = "not_actionable"
	DropDuplicate     = "duplicate"
)

// Sink receives engine measurements. All methods must be non-blocking
// and safe for concurrent use.
type Sink interface {
	// EventReceived counts a normalized trigger event entering the
	// pipeline, labelled by source kind.
	EventReceived(source string)
	// EventDropped counts an event dropped before dispatch.
	EventDropped(source, reason string)
	// ExecutionDispatched counts an execution record created.
	ExecutionDispatched(source, workflowType string)
	// ExecutionStarted / ExecutionFinished track the in-flight gauge and
	// the duration histogram. outcome is "completed" or "failed".
	ExecutionStarted()
	ExecutionFinished(outcome string, duration time.Duration)
	// SchedulerTick records one evaluation pass and how many jobs fired.
	SchedulerTick(fired int)
	// SourcePollError counts a failed poll for a source.
	SourcePollError(source string)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) EventReceived(string) {}

func (Noop) EventDropped(string, string) {}

func (Noop) ExecutionDispatched(string, string) {}

func (Noop) ExecutionStarted() {}

func (Noop) ExecutionFinished(string, time.Duration) {}

func (Noop) SchedulerTick(int) {}

func (Noop) SourcePollError(string) {}
