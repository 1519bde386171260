// Package schedule holds recurring job definitions and synthesizes
// clock-sourced trigger events when they come due.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// RecurrenceKind selects how a job repeats.
type RecurrenceKind string

const (
	Hourly RecurrenceKind = "hourly"
	Daily  RecurrenceKind = "daily"
	Weekly RecurrenceKind = "weekly"
	Cron   RecurrenceKind = "cron"
)

// Recurrence is a pure description of when a job fires. At is "HH:MM"
// for daily and weekly kinds; Day names the weekday for weekly; Spec is
// a standard 5-field cron expression for the cron kind.
type Recurrence struct {
	Kind RecurrenceKind `json:"kind" yaml:"kind"`
	At   string         `json:"at,omitempty" yaml:"at,omitempty"`
	Day  string         `json:"day,omitempty" yaml:"day,omitempty"`
	Spec string         `json:"spec,omitempty" yaml:"spec,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate checks the recurrence definition without computing anything.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case Hourly:
		return nil
	case Daily:
		_, _, err := parseClock(r.At)
		return err
	case Weekly:
		if _, ok := weekdays[strings.ToLower(r.Day)]; !ok {
			return fmt.Errorf("unknown weekday %q", r.Day)
		}
		_, _, err := parseClock(r.At)
		return err
	case Cron:
		if _, err := cronParser.Parse(r.Spec); err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", r.Spec, err)
		}
		return nil
	}
	return fmt.Errorf("unknown recurrence kind %q", r.Kind)
}

// Next computes the next fire time strictly after now. It is a pure
// function: calling it twice with the same now yields the same result,
// which is what keeps repeated tick-loop evaluation idempotent.
func (r Recurrence) Next(now time.Time) (time.Time, error) {
	switch r.Kind {
	case Hourly:
		return now.Truncate(time.Hour).Add(time.Hour), nil

	case Daily:
		hh, mm, err := parseClock(r.At)
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case Weekly:
		day, ok := weekdays[strings.ToLower(r.Day)]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown weekday %q", r.Day)
		}
		hh, mm, err := parseClock(r.At)
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		offset := (int(day) - int(now.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, offset)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case Cron:
		sched, err := cronParser.Parse(r.Spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron spec %q: %w", r.Spec, err)
		}
		return sched.Next(now), nil
	}
	return time.Time{}, fmt.Errorf("unknown recurrence kind %q", r.Kind)
}

// String renders the recurrence for logs and API responses.
func (r Recurrence) String() string {
	switch r.Kind {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily at " + r.At
	case Weekly:
		return fmt.Sprintf("weekly on %s at %s", strings.ToLower(r.Day), r.At)
	case Cron:
		return "cron " + r.Spec
	}
	return string(r.Kind)
}

func parseClock(at string) (hh, mm int, err error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", at)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", at)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", at)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("time of day %q out of range", at)
	}
	return hh, mm, nil
}
