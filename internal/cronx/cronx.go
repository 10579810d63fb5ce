// Copyright Contributors to the ingestctl project

// Package cronx answers one question for the lifecycle manager's cron
// tick: "is this task due right now?". It wraps robfig/cron's standard
// parser with the due-window and idempotence rules the manager needs,
// without owning any scheduling loop itself — an external tick source
// invokes the manager's TriggerAllEnabledCronTasks, which calls
// Evaluator.IsDue once per tick for every enabled cron task.
package cronx

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DueWindow is how far past a task's previous scheduled time the
// evaluator still considers it due, to absorb jitter in when the
// external tick source invokes the cron check.
const DueWindow = 65 * time.Second

// Evaluator wraps a parsed cron.Schedule.
type Evaluator struct {
	schedule cron.Schedule
	expr     string
}

// Parse validates expr using the standard five-field cron syntax
// (minute hour day-of-month month day-of-week).
func Parse(expr string) (*Evaluator, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cronx: invalid schedule %q: %w", expr, err)
	}
	return &Evaluator{schedule: schedule, expr: expr}, nil
}

// PreviousScheduledTime returns the most recent time at or before now
// that the schedule would have fired, computed by walking forward from
// a point known to precede it (since cron.Schedule only exposes Next).
func (e *Evaluator) PreviousScheduledTime(now time.Time) time.Time {
	// Walk back far enough that at least one firing is guaranteed to
	// exist between floor and now for any standard five-field
	// expression (the coarsest being "once a year").
	floor := now.Add(-366 * 24 * time.Hour)
	prev := floor
	for {
		next := e.schedule.Next(prev)
		if next.After(now) {
			return prev
		}
		prev = next
	}
}

// IsDue reports whether a task last run at lastRun (the zero Time if
// it has never run) is due at now: its previous scheduled firing falls
// within [now-DueWindow, now], and that firing has not already been
// satisfied by lastRun.
func (e *Evaluator) IsDue(now, lastRun time.Time) bool {
	prevScheduled := e.PreviousScheduledTime(now)
	if now.Sub(prevScheduled) > DueWindow {
		return false
	}
	return lastRun.Before(prevScheduled)
}

// NextAfter returns the next time the schedule fires strictly after t.
func (e *Evaluator) NextAfter(t time.Time) time.Time {
	return e.schedule.Next(t)
}

// Expression returns the original cron expression this Evaluator was
// parsed from.
func (e *Evaluator) Expression() string {
	return e.expr
}
