// Package tray renders the live session status in the system tray and
// menu bar.
package tray

import (
	"context"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/systray"

	"focustimer/internal/core/accounting"
	"focustimer/internal/core/model"
	"focustimer/internal/core/publisher"
)

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnStart       func()
	OnPause       func()
	OnResume      func()
	OnStop        func()
	OnCancel      func()
	OnPreferences func()
	OnQuit        func()
}

// Manager handles system tray state. It implements publisher.LiveStatus.
type Manager struct {
	app       desktop.App
	callbacks Callbacks

	runOnMain func(func())
	setTitle  func(string)

	mu     sync.Mutex
	active publisher.LiveHandle
	phase  model.Phase
	status string
	title  string
}

// New creates a tray manager with the provided callbacks.
func New(app desktop.App, callbacks Callbacks) *Manager {
	app.SetSystemTrayIcon(theme.HistoryIcon())
	return newManager(app, callbacks, fyne.Do, systray.SetTitle)
}

func newManager(app desktop.App, callbacks Callbacks, runOnMain func(func()), setTitle func(string)) *Manager {
	manager := &Manager{
		app:       app,
		callbacks: callbacks,
		runOnMain: runOnMain,
		setTitle:  setTitle,
		phase:     model.PhaseIdle,
		status:    "Idle",
	}
	manager.render()
	return manager
}

// Begin shows a newly started session.
func (manager *Manager) Begin(_ context.Context, attrs publisher.Attributes) (publisher.LiveHandle, error) {
	handle := publisher.LiveHandle(attrs.SessionID)

	manager.mu.Lock()
	manager.active = handle
	manager.phase = model.PhaseRunning
	manager.status = StatusLine(model.Snapshot{
		Title:        attrs.Title,
		Phase:        model.PhaseRunning,
		Remaining:    attrs.Planned,
		HasRemaining: attrs.Planned > 0,
	})
	manager.title = accounting.FormatClock(0)
	manager.mu.Unlock()

	manager.render()
	return handle, nil
}

// Update shows snapshot. Updates for an ended or replaced activity are ignored.
func (manager *Manager) Update(_ context.Context, handle publisher.LiveHandle, snapshot model.Snapshot) error {
	manager.mu.Lock()
	if handle != manager.active {
		manager.mu.Unlock()
		return nil
	}
	manager.phase = snapshot.Phase
	manager.status = StatusLine(snapshot)
	manager.title = MenuBarTitle(snapshot)
	manager.mu.Unlock()

	manager.render()
	return nil
}

// End shows the final snapshot and returns the tray to idle.
func (manager *Manager) End(_ context.Context, handle publisher.LiveHandle, final model.Snapshot) error {
	manager.mu.Lock()
	if handle != manager.active {
		manager.mu.Unlock()
		return fmt.Errorf("end live status: unknown handle %q", handle)
	}
	manager.active = ""
	manager.phase = model.PhaseIdle
	manager.status = StatusLine(final)
	manager.title = ""
	manager.mu.Unlock()

	manager.render()
	return nil
}

// Phase returns the phase currently shown.
func (manager *Manager) Phase() model.Phase {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.phase
}

// Status returns the status line currently shown.
func (manager *Manager) Status() string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.status
}

// StatusLine formats a snapshot as "<title> 12:34 (paused)".
func StatusLine(snapshot model.Snapshot) string {
	if snapshot.Countdown > 0 {
		return fmt.Sprintf("%s starts in %s", snapshot.Title, accounting.FormatClock(snapshot.Countdown))
	}
	line := fmt.Sprintf("%s %s", snapshot.Title, accounting.FormatClock(snapshot.Elapsed))
	if snapshot.HasRemaining {
		line += fmt.Sprintf(" / %s left", accounting.FormatClock(snapshot.Remaining))
	}
	switch {
	case snapshot.Ended:
		line += fmt.Sprintf(" (%s)", snapshot.Phase.Label())
	case snapshot.Phase == model.PhasePaused:
		line += " (paused)"
	}
	return line
}

// MenuBarTitle is the short text shown next to the tray icon.
func MenuBarTitle(snapshot model.Snapshot) string {
	if snapshot.Ended {
		return ""
	}
	if snapshot.Countdown > 0 {
		return "-" + accounting.FormatClock(snapshot.Countdown)
	}
	if snapshot.Phase == model.PhasePaused {
		return "‖ " + accounting.FormatClock(snapshot.Elapsed)
	}
	return accounting.FormatClock(snapshot.Elapsed)
}

func (manager *Manager) render() {
	manager.mu.Lock()
	phase := manager.phase
	status := manager.status
	title := manager.title
	manager.mu.Unlock()

	manager.runOnMain(func() {
		manager.setTitle(title)
		if manager.app != nil {
			manager.app.SetSystemTrayMenu(manager.buildMenu(phase, status))
		}
	})
}

func (manager *Manager) buildMenu(phase model.Phase, status string) *fyne.Menu {
	statusItem := fyne.NewMenuItem(status, nil)
	statusItem.Disabled = true

	var primary *fyne.MenuItem
	switch phase {
	case model.PhaseRunning:
		primary = fyne.NewMenuItemWithIcon("Pause", theme.MediaPauseIcon(), invoke(manager.callbacks.OnPause))
	case model.PhasePaused:
		primary = fyne.NewMenuItemWithIcon("Resume", theme.MediaPlayIcon(), invoke(manager.callbacks.OnResume))
	default:
		primary = fyne.NewMenuItemWithIcon("Start", theme.MediaPlayIcon(), invoke(manager.callbacks.OnStart))
	}

	stop := fyne.NewMenuItemWithIcon("Stop", theme.MediaStopIcon(), invoke(manager.callbacks.OnStop))
	cancel := fyne.NewMenuItemWithIcon("Cancel", theme.CancelIcon(), invoke(manager.callbacks.OnCancel))
	stop.Disabled = !phase.Active()
	cancel.Disabled = !phase.Active()

	preferences := fyne.NewMenuItemWithIcon("Preferences", theme.SettingsIcon(), invoke(manager.callbacks.OnPreferences))
	quit := fyne.NewMenuItem("Quit", invoke(manager.callbacks.OnQuit))
	quit.IsQuit = true

	return fyne.NewMenu("Focus Timer",
		statusItem,
		fyne.NewMenuItemSeparator(),
		primary,
		stop,
		cancel,
		fyne.NewMenuItemSeparator(),
		preferences,
		quit,
	)
}

func invoke(callback func()) func() {
	return func() {
		if callback != nil {
			callback()
		}
	}
}
