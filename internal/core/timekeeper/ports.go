package timekeeper

import (
	"context"

	"focustimer/internal/core/guard"
	"focustimer/internal/core/model"
)

// Persistence stores finished sessions.
type Persistence interface {
	AppendSession(ctx context.Context, session model.Session) error
}

// StartTimeSource exposes the one-shot custom start setting.
type StartTimeSource interface {
	CustomStart() (model.CustomStart, error)
	ClearCustomStart() error
}

// Publisher receives snapshots. Publish must not block.
type Publisher interface {
	Publish(snapshot model.Snapshot)
}

// ContinuationGuard keeps the process ticking while backgrounded.
type ContinuationGuard interface {
	Acquire() (guard.Handle, error)
	Release(handle guard.Handle)
	SetExpiryHandler(onExpiry func())
}
