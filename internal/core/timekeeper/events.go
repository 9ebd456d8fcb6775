package timekeeper

import (
	"time"

	"focustimer/internal/core/model"
)

// EventType defines the type of TimeKeeper event.
type EventType string

const (
	EventStateChange  EventType = "state_change"
	EventProgress     EventType = "progress"
	EventRetimed      EventType = "retimed"
	EventGuardExpired EventType = "guard_expired"
)

// Event represents a TimeKeeper update for observers.
type Event struct {
	Type     EventType
	Phase    model.Phase
	Snapshot model.Snapshot
	Message  string
	At       time.Time
}
