package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Session is one focus record. While active it is owned by the engine; once
// finalized it is immutable and handed off for persistence.
type Session struct {
	ID         string
	Title      string
	Start      time.Time
	Planned    time.Duration
	Tags       []string
	LinkedTask string
	Notes      string

	// End and Duration are set by Finalize.
	End      time.Time
	Duration time.Duration
}

// NewSession creates an active session with a fresh identifier.
func NewSession(title string, start time.Time, planned time.Duration, tags []string, linkedTask string) Session {
	return Session{
		ID:         uuid.NewString(),
		Title:      title,
		Start:      start,
		Planned:    planned,
		Tags:       normalizeTags(tags),
		LinkedTask: linkedTask,
	}
}

// Finalize returns the finished record for the session.
func (session Session) Finalize(notes string, duration time.Duration) Session {
	if duration < 0 {
		duration = 0
	}
	finished := session
	finished.Tags = append([]string(nil), session.Tags...)
	finished.Notes = notes
	finished.Duration = duration
	finished.End = session.Start.Add(duration)
	return finished
}

// Finished reports whether Finalize produced this record.
func (session Session) Finished() bool {
	return !session.End.IsZero()
}

// tags are a set; order is irrelevant, so keep them sorted and unique.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
