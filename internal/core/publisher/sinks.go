package publisher

import (
	"context"
	"time"

	"focustimer/internal/core/model"
)

// Mirror keys readable from outside the process.
const (
	KeyIsRunning      = "isRunning"
	KeyTitle          = "title"
	KeyElapsedSeconds = "elapsedSeconds"
)

// Attributes describe a session to the live status surface when it begins.
type Attributes struct {
	SessionID string
	Title     string
	Planned   time.Duration
}

// LiveHandle identifies a live status activity.
type LiveHandle string

// LiveStatus renders session state outside the app process.
type LiveStatus interface {
	Begin(ctx context.Context, attrs Attributes) (LiveHandle, error)
	Update(ctx context.Context, handle LiveHandle, snapshot model.Snapshot) error
	End(ctx context.Context, handle LiveHandle, final model.Snapshot) error
}

// Mirror is a last-write-wins key-value store shared with other processes.
type Mirror interface {
	Write(ctx context.Context, key string, value any) error
}

// MirrorValues returns the mirror entries for snapshot.
func MirrorValues(snapshot model.Snapshot) map[string]any {
	return map[string]any{
		KeyIsRunning:      snapshot.Phase == model.PhaseRunning && !snapshot.Ended,
		KeyTitle:          snapshot.Title,
		KeyElapsedSeconds: int64(snapshot.Elapsed / time.Second),
	}
}
