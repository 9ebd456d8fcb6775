package tray

import (
	"context"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustimer/internal/core/model"
	"focustimer/internal/core/publisher"
)

type titleRecorder struct {
	mu     sync.Mutex
	titles []string
}

func (recorder *titleRecorder) set(title string) {
	recorder.mu.Lock()
	recorder.titles = append(recorder.titles, title)
	recorder.mu.Unlock()
}

func (recorder *titleRecorder) last() string {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.titles) == 0 {
		return ""
	}
	return recorder.titles[len(recorder.titles)-1]
}

func newTestManager(t *testing.T) (*Manager, *titleRecorder) {
	t.Helper()
	test.NewTempApp(t)
	recorder := &titleRecorder{}
	manager := newManager(nil, Callbacks{}, func(fn func()) { fn() }, recorder.set)
	return manager, recorder
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name     string
		snapshot model.Snapshot
		want     string
	}{
		{
			name:     "running",
			snapshot: model.Snapshot{Title: "Focus", Phase: model.PhaseRunning, Elapsed: 754 * time.Second},
			want:     "Focus 12:34",
		},
		{
			name:     "paused",
			snapshot: model.Snapshot{Title: "Focus", Phase: model.PhasePaused, Elapsed: 754 * time.Second},
			want:     "Focus 12:34 (paused)",
		},
		{
			name: "planned",
			snapshot: model.Snapshot{
				Title: "Read", Phase: model.PhaseRunning,
				Elapsed: 5 * time.Minute, Remaining: 20 * time.Minute, HasRemaining: true,
			},
			want: "Read 05:00 / 20:00 left",
		},
		{
			name:     "countdown",
			snapshot: model.Snapshot{Title: "Focus", Phase: model.PhaseRunning, Countdown: 90 * time.Second},
			want:     "Focus starts in 01:30",
		},
		{
			name:     "completed",
			snapshot: model.Snapshot{Title: "Focus", Phase: model.PhaseCompleted, Elapsed: time.Hour, Ended: true},
			want:     "Focus 1:00:00 (Done)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.snapshot))
		})
	}
}

func TestMenuBarTitle(t *testing.T) {
	assert.Equal(t, "00:42", MenuBarTitle(model.Snapshot{Phase: model.PhaseRunning, Elapsed: 42 * time.Second}))
	assert.Equal(t, "‖ 00:42", MenuBarTitle(model.Snapshot{Phase: model.PhasePaused, Elapsed: 42 * time.Second}))
	assert.Equal(t, "-00:10", MenuBarTitle(model.Snapshot{Phase: model.PhaseRunning, Countdown: 10 * time.Second}))
	assert.Empty(t, MenuBarTitle(model.Snapshot{Phase: model.PhaseCancelled, Ended: true}))
}

func TestManagerLifecycle(t *testing.T) {
	manager, titles := newTestManager(t)
	ctx := context.Background()
	assert.Equal(t, "Idle", manager.Status())

	handle, err := manager.Begin(ctx, publisher.Attributes{SessionID: "s-1", Title: "Focus"})
	require.NoError(t, err)
	assert.Equal(t, publisher.LiveHandle("s-1"), handle)
	assert.Equal(t, model.PhaseRunning, manager.Phase())
	assert.Equal(t, "00:00", titles.last())

	require.NoError(t, manager.Update(ctx, handle, model.Snapshot{
		Title: "Focus", Phase: model.PhasePaused, Elapsed: 65 * time.Second,
	}))
	assert.Equal(t, model.PhasePaused, manager.Phase())
	assert.Equal(t, "Focus 01:05 (paused)", manager.Status())
	assert.Equal(t, "‖ 01:05", titles.last())

	require.NoError(t, manager.End(ctx, handle, model.Snapshot{
		Title: "Focus", Phase: model.PhaseCompleted, Elapsed: 65 * time.Second, Ended: true,
	}))
	assert.Equal(t, model.PhaseIdle, manager.Phase())
	assert.Equal(t, "Focus 01:05 (Done)", manager.Status())
	assert.Empty(t, titles.last())
}

func TestManagerIgnoresStaleHandles(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	handle, err := manager.Begin(ctx, publisher.Attributes{SessionID: "s-1", Title: "Focus"})
	require.NoError(t, err)
	require.NoError(t, manager.End(ctx, handle, model.Snapshot{Title: "Focus", Phase: model.PhaseCancelled, Ended: true}))

	require.NoError(t, manager.Update(ctx, handle, model.Snapshot{Title: "Focus", Phase: model.PhaseRunning}))
	assert.Equal(t, model.PhaseIdle, manager.Phase())

	assert.Error(t, manager.End(ctx, handle, model.Snapshot{Ended: true}))
}

func TestBeginShowsPlannedDuration(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Begin(context.Background(), publisher.Attributes{SessionID: "s-1", Title: "Focus", Planned: 25 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "Focus 00:00 / 25:00 left", manager.Status())
}

func TestBuildMenuFollowsPhase(t *testing.T) {
	manager, _ := newTestManager(t)

	idle := manager.buildMenu(model.PhaseIdle, "Idle")
	assert.Equal(t, "Start", idle.Items[2].Label)
	assert.True(t, idle.Items[3].Disabled)
	assert.True(t, idle.Items[4].Disabled)

	running := manager.buildMenu(model.PhaseRunning, "Focus 00:01")
	assert.Equal(t, "Focus 00:01", running.Items[0].Label)
	assert.Equal(t, "Pause", running.Items[2].Label)
	assert.False(t, running.Items[3].Disabled)

	paused := manager.buildMenu(model.PhasePaused, "Focus 00:01 (paused)")
	assert.Equal(t, "Resume", paused.Items[2].Label)
}

func TestMenuActionsInvokeCallbacks(t *testing.T) {
	test.NewTempApp(t)
	var started, stopped bool
	manager := newManager(nil, Callbacks{
		OnStart: func() { started = true },
		OnStop:  func() { stopped = true },
	}, func(fn func()) { fn() }, func(string) {})

	menu := manager.buildMenu(model.PhaseIdle, "Idle")
	menu.Items[2].Action()
	menu.Items[3].Action()
	menu.Items[4].Action()
	assert.True(t, started)
	assert.True(t, stopped)
}
