package control

import (
	"time"

	"focustimer/internal/core/accounting"
	"focustimer/internal/core/model"
)

// Status is the JSON body returned by the control API.
type Status struct {
	Applied          bool           `json:"applied"`
	Phase            model.Phase    `json:"phase"`
	SessionID        string         `json:"session_id,omitempty"`
	Title            string         `json:"title,omitempty"`
	ElapsedSeconds   int64          `json:"elapsed_seconds"`
	Elapsed          string         `json:"elapsed"`
	RemainingSeconds *int64         `json:"remaining_seconds,omitempty"`
	CountdownSeconds int64          `json:"countdown_seconds,omitempty"`
	Session          *SessionRecord `json:"session,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// SessionRecord describes a finished session.
type SessionRecord struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds int64     `json:"duration_seconds"`
	Tags            []string  `json:"tags,omitempty"`
	LinkedTask      string    `json:"linked_task,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// NewStatus converts a dispatch outcome to its wire form.
func NewStatus(outcome Outcome) Status {
	snapshot := outcome.Snapshot
	status := Status{
		Applied:          outcome.Applied,
		Phase:            snapshot.Phase,
		SessionID:        snapshot.SessionID,
		Title:            snapshot.Title,
		ElapsedSeconds:   int64(snapshot.Elapsed / time.Second),
		Elapsed:          accounting.FormatClock(snapshot.Elapsed),
		CountdownSeconds: int64(snapshot.Countdown / time.Second),
	}
	if snapshot.HasRemaining {
		remaining := int64(snapshot.Remaining / time.Second)
		status.RemainingSeconds = &remaining
	}
	if session := outcome.Session; session != nil {
		status.Session = &SessionRecord{
			ID:              session.ID,
			Title:           session.Title,
			Start:           session.Start,
			End:             session.End,
			DurationSeconds: int64(session.Duration / time.Second),
			Tags:            session.Tags,
			LinkedTask:      session.LinkedTask,
			Notes:           session.Notes,
		}
	}
	return status
}
