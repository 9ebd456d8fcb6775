// Package accounting computes elapsed and remaining time for a focus session.
//
// The computation favours what the user expects to see right now over strict
// interval arithmetic: a session whose declared start was moved into the past
// shows the backdated time immediately, and a session scheduled for the future
// shows zero elapsed time until it begins.
package accounting

import (
	"fmt"
	"time"
)

// Input holds everything the accountant needs for one computation.
type Input struct {
	// Start is the declared start of the session. It may lie in the past or future.
	Start time.Time
	// Origin is the instant the engine began accounting for the session.
	Origin time.Time
	// Accumulated is the running time credited from completed running intervals.
	Accumulated time.Duration
	// RunningSince anchors the current running interval. Zero while paused.
	RunningSince time.Time
	// Pauses lists the paused intervals since Origin. A zero To marks the pause
	// still in progress. When empty, pauses are derived from Accumulated.
	Pauses []Interval
	// Planned is the target length of the session. Zero means open-ended.
	Planned time.Duration
	Now     time.Time
}

// Interval is a span of wall time. A zero To is open and ends at the time of
// the computation.
type Interval struct {
	From time.Time
	To   time.Time
}

// Result is the outcome of Compute.
type Result struct {
	Elapsed time.Duration
	// Remaining is only meaningful when HasRemaining is set.
	Remaining    time.Duration
	HasRemaining bool
	// Countdown is the time left until a future start; zero otherwise.
	Countdown time.Duration
}

// Running reports whether the input describes an open running interval.
func (input Input) Running() bool {
	return !input.RunningSince.IsZero()
}

// Compute returns the elapsed time for input and, for planned sessions, the
// time remaining.
func Compute(input Input) Result {
	var result Result

	switch {
	case input.Start.After(input.Now):
		result.Countdown = input.Start.Sub(input.Now)
	case !input.Origin.IsZero() && !input.Start.Equal(input.Origin):
		result.Elapsed = shiftedElapsed(input)
	default:
		result.Elapsed = input.Accumulated + input.currentInterval()
	}

	if result.Elapsed < 0 {
		result.Elapsed = 0
	}

	if input.Planned > 0 && result.Elapsed < input.Planned {
		result.Remaining = input.Planned - result.Elapsed
		result.HasRemaining = true
	}
	return result
}

// shiftedElapsed handles a declared start that differs from the accounting
// origin. The wall time since the declared start is reduced by the time spent
// paused after that start.
func shiftedElapsed(input Input) time.Duration {
	wall := input.Now.Sub(input.Start)
	elapsed := wall - pausedSinceStart(input)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// pausedSinceStart clips the recorded pauses to [Start, Now]. Without a pause
// history the paused total is whatever the window since the later of Start and
// Origin did not spend running.
func pausedSinceStart(input Input) time.Duration {
	if len(input.Pauses) > 0 {
		var paused time.Duration
		for _, pause := range input.Pauses {
			paused += pause.overlap(input.Start, input.Now)
		}
		return paused
	}

	from := input.Origin
	if input.Start.After(from) {
		from = input.Start
	}
	paused := input.Now.Sub(from) - input.currentInterval() - input.Accumulated
	if paused < 0 {
		return 0
	}
	return paused
}

func (interval Interval) overlap(from, to time.Time) time.Duration {
	end := interval.To
	if end.IsZero() || end.After(to) {
		end = to
	}
	begin := interval.From
	if begin.Before(from) {
		begin = from
	}
	if !end.After(begin) {
		return 0
	}
	return end.Sub(begin)
}

func (input Input) currentInterval() time.Duration {
	if !input.Running() {
		return 0
	}
	interval := input.Now.Sub(input.RunningSince)
	if interval < 0 {
		return 0
	}
	return interval
}

// FormatClock renders d as MM:SS, or H:MM:SS from one hour on.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int(d / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	seconds = seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
