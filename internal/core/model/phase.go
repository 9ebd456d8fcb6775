package model

import "time"

// Phase is the lifecycle state of the engine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

// Label returns the human readable phase name used on status surfaces.
func (phase Phase) Label() string {
	switch phase {
	case PhaseRunning:
		return "Focusing"
	case PhasePaused:
		return "Paused"
	case PhaseCompleted:
		return "Done"
	case PhaseCancelled:
		return "Cancelled"
	default:
		return "Idle"
	}
}

// Active reports whether a session is in progress.
func (phase Phase) Active() bool {
	return phase == PhaseRunning || phase == PhasePaused
}

// Snapshot is the engine state handed to observers and publishers.
type Snapshot struct {
	SessionID    string
	Title        string
	Phase        Phase
	Planned      time.Duration
	Elapsed      time.Duration
	Remaining    time.Duration
	HasRemaining bool
	Countdown    time.Duration
	At           time.Time
	// Ended marks the final snapshot of a session.
	Ended bool
	// Immediate asks publishers to skip their cadence limit.
	Immediate bool
}
