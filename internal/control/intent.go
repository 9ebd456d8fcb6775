// Package control is the inbound surface of a running instance: URL intents,
// the local HTTP API and its client.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"focustimer/internal/core/model"
	"focustimer/internal/core/timekeeper"
)

// Scheme is the URL scheme for intents, as in focustimer://toggle?running=1.
const Scheme = "focustimer"

// Action names an engine operation.
type Action string

const (
	ActionToggle Action = "toggle"
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionCancel Action = "cancel"
	ActionRetime Action = "retime"
	ActionStatus Action = "status"
)

// ErrUnknownAction is returned for intents that name no engine operation.
var ErrUnknownAction = errors.New("unknown action")

// Engine is the operation set the control surface drives.
type Engine interface {
	Start(request timekeeper.StartRequest) bool
	Pause() bool
	Resume() bool
	Stop(ctx context.Context, notes string) (timekeeper.StopResult, error)
	Cancel() bool
	Retime() bool
	Toggle(running bool) bool
	Snapshot() model.Snapshot
}

// Intent is a parsed request to the engine.
type Intent struct {
	Action     Action
	Running    bool
	Title      string
	Tags       []string
	LinkedTask string
	Planned    time.Duration
	Notes      string
}

// Outcome is the result of dispatching an Intent.
type Outcome struct {
	Applied  bool
	Snapshot model.Snapshot
	// Session is set when a stop finalized a session.
	Session *model.Session
}

// ParseIntent parses a focustimer:// URL.
func ParseIntent(rawURL string) (Intent, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Intent{}, fmt.Errorf("parse intent url: %w", err)
	}
	if parsed.Scheme != Scheme {
		return Intent{}, fmt.Errorf("parse intent url: unexpected scheme %q", parsed.Scheme)
	}

	// focustimer://toggle puts the action in the host; focustimer:///toggle in the path.
	action := parsed.Host
	if action == "" {
		action = strings.Trim(parsed.Path, "/")
	}
	return IntentFromValues(action, parsed.Query())
}

// IntentFromValues builds an Intent from an action name and query parameters.
func IntentFromValues(action string, values url.Values) (Intent, error) {
	intent := Intent{Action: Action(strings.ToLower(strings.TrimSpace(action)))}

	switch intent.Action {
	case ActionToggle:
		raw := values.Get("running")
		if raw == "" {
			return Intent{}, fmt.Errorf("toggle intent: running parameter is required")
		}
		running, err := strconv.ParseBool(raw)
		if err != nil {
			return Intent{}, fmt.Errorf("toggle intent: parse running: %w", err)
		}
		intent.Running = running

	case ActionStart:
		intent.Title = values.Get("title")
		intent.LinkedTask = values.Get("task")
		for _, tag := range values["tag"] {
			intent.Tags = append(intent.Tags, strings.Split(tag, ",")...)
		}
		if raw := values.Get("planned"); raw != "" {
			planned, err := parsePlanned(raw)
			if err != nil {
				return Intent{}, fmt.Errorf("start intent: %w", err)
			}
			intent.Planned = planned
		}

	case ActionStop:
		intent.Notes = values.Get("notes")

	case ActionPause, ActionResume, ActionCancel, ActionRetime, ActionStatus:

	default:
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return intent, nil
}

// Values encodes the intent parameters, the inverse of IntentFromValues.
func (intent Intent) Values() url.Values {
	values := url.Values{}
	switch intent.Action {
	case ActionToggle:
		values.Set("running", strconv.FormatBool(intent.Running))
	case ActionStart:
		if intent.Title != "" {
			values.Set("title", intent.Title)
		}
		if intent.LinkedTask != "" {
			values.Set("task", intent.LinkedTask)
		}
		for _, tag := range intent.Tags {
			values.Add("tag", tag)
		}
		if intent.Planned > 0 {
			values.Set("planned", intent.Planned.String())
		}
	case ActionStop:
		if intent.Notes != "" {
			values.Set("notes", intent.Notes)
		}
	}
	return values
}

// Dispatch applies intent to engine. A stop whose session could not be
// persisted returns the outcome together with an error wrapping
// timekeeper.ErrPersist.
func Dispatch(ctx context.Context, engine Engine, intent Intent) (Outcome, error) {
	var outcome Outcome
	switch intent.Action {
	case ActionToggle:
		outcome.Applied = engine.Toggle(intent.Running)
	case ActionStart:
		outcome.Applied = engine.Start(timekeeper.StartRequest{
			Title:      intent.Title,
			Tags:       intent.Tags,
			LinkedTask: intent.LinkedTask,
			Planned:    intent.Planned,
		})
	case ActionPause:
		outcome.Applied = engine.Pause()
	case ActionResume:
		outcome.Applied = engine.Resume()
	case ActionStop:
		result, err := engine.Stop(ctx, intent.Notes)
		outcome.Applied = result.Stopped
		if result.Stopped {
			session := result.Session
			outcome.Session = &session
		}
		if err != nil {
			outcome.Snapshot = engine.Snapshot()
			return outcome, err
		}
	case ActionCancel:
		outcome.Applied = engine.Cancel()
	case ActionRetime:
		outcome.Applied = engine.Retime()
	case ActionStatus:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, intent.Action)
	}
	outcome.Snapshot = engine.Snapshot()
	return outcome, nil
}

// parsePlanned accepts a Go duration ("25m") or a bare number of minutes.
func parsePlanned(raw string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(raw); err == nil {
		if minutes < 0 {
			return 0, fmt.Errorf("planned minutes must not be negative")
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	planned, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse planned duration: %w", err)
	}
	if planned < 0 {
		return 0, fmt.Errorf("planned duration must not be negative")
	}
	return planned, nil
}
