package timekeeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"focustimer/internal/core/clock"
	"focustimer/internal/core/guard"
	"focustimer/internal/core/model"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []model.Snapshot
}

func (publisher *recordingPublisher) Publish(snapshot model.Snapshot) {
	publisher.mu.Lock()
	publisher.snapshots = append(publisher.snapshots, snapshot)
	publisher.mu.Unlock()
}

func (publisher *recordingPublisher) all() []model.Snapshot {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return append([]model.Snapshot(nil), publisher.snapshots...)
}

func (publisher *recordingPublisher) last() model.Snapshot {
	all := publisher.all()
	if len(all) == 0 {
		return model.Snapshot{}
	}
	return all[len(all)-1]
}

type memoryPersistence struct {
	mu       sync.Mutex
	sessions []model.Session
	calls    int
	failures int
}

func (persistence *memoryPersistence) AppendSession(_ context.Context, session model.Session) error {
	persistence.mu.Lock()
	defer persistence.mu.Unlock()
	persistence.calls++
	if persistence.failures > 0 {
		persistence.failures--
		return errors.New("disk full")
	}
	persistence.sessions = append(persistence.sessions, session)
	return nil
}

type memoryStartTimes struct {
	mu      sync.Mutex
	custom  model.CustomStart
	cleared int
}

func (source *memoryStartTimes) CustomStart() (model.CustomStart, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.custom, nil
}

func (source *memoryStartTimes) ClearCustomStart() error {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.custom.Enabled = false
	source.cleared++
	return nil
}

func (source *memoryStartTimes) set(custom model.CustomStart) {
	source.mu.Lock()
	source.custom = custom
	source.mu.Unlock()
}

type grantHost struct {
	mu      sync.Mutex
	next    guard.GrantID
	active  map[guard.GrantID]func()
	begun   int
	denyAll bool
}

func (host *grantHost) BeginGrant(onExpire func()) (guard.GrantID, error) {
	host.mu.Lock()
	defer host.mu.Unlock()
	if host.denyAll {
		return 0, errors.New("denied")
	}
	if host.active == nil {
		host.active = make(map[guard.GrantID]func())
	}
	host.next++
	host.begun++
	host.active[host.next] = onExpire
	return host.next, nil
}

func (host *grantHost) EndGrant(id guard.GrantID) {
	host.mu.Lock()
	delete(host.active, id)
	host.mu.Unlock()
}

func (host *grantHost) expireAll() {
	host.mu.Lock()
	callbacks := make([]func(), 0, len(host.active))
	for id, callback := range host.active {
		callbacks = append(callbacks, callback)
		delete(host.active, id)
	}
	host.mu.Unlock()
	for _, callback := range callbacks {
		callback()
	}
}

func (host *grantHost) counts() (active, begun int) {
	host.mu.Lock()
	defer host.mu.Unlock()
	return len(host.active), host.begun
}

type harness struct {
	keeper      *TimeKeeper
	clock       *clock.Fake
	publisher   *recordingPublisher
	persistence *memoryPersistence
	startTimes  *memoryStartTimes
	host        *grantHost
}

var morning = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:       clock.NewFake(morning),
		publisher:   &recordingPublisher{},
		persistence: &memoryPersistence{},
		startTimes:  &memoryStartTimes{},
		host:        &grantHost{},
	}
	h.keeper = New(model.EngineConfig{TickInterval: time.Second, DefaultTitle: "Focus", PersistRetries: 1}, Deps{
		Clock:       h.clock,
		Persistence: h.persistence,
		StartTimes:  h.startTimes,
		Publisher:   h.publisher,
		Guard:       guard.New(h.host, nil, zerolog.Nop()),
		Logger:      zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.keeper.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) state() engineState {
	var state engineState
	h.keeper.do(func() { state = h.keeper.state })
	return state
}

func (h *harness) elapsed() time.Duration {
	return h.keeper.Snapshot().Elapsed
}

func TestStartActivatesTickerGuardAndPublishes(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.keeper.Start(StartRequest{Title: "Write", Tags: []string{"deep"}}))

	snapshot := h.publisher.last()
	assert.Equal(t, model.PhaseRunning, snapshot.Phase)
	assert.Equal(t, "Write", snapshot.Title)
	assert.True(t, snapshot.Immediate)
	assert.Equal(t, 1, h.clock.ActiveTickers())
	active, _ := h.host.counts()
	assert.Equal(t, 1, active)

	state := h.state()
	assert.Equal(t, morning, state.runningSince)
	assert.Zero(t, state.accumulated)
}

func TestStartUsesDefaultTitle(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))
	assert.Equal(t, "Focus", h.keeper.Snapshot().Title)
}

func TestSnapshotCarriesPlannedDuration(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{Planned: 25 * time.Minute}))

	assert.Equal(t, 25*time.Minute, h.publisher.last().Planned)
	h.clock.Set(morning.Add(time.Minute))
	snapshot := h.keeper.Snapshot()
	assert.Equal(t, 25*time.Minute, snapshot.Planned)
	assert.Equal(t, 24*time.Minute, snapshot.Remaining)
}

func TestPauseResumeScenarioExcludesPausedGap(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.keeper.Start(StartRequest{Title: "Read"}))
	h.clock.Set(morning.Add(5 * time.Second))
	require.True(t, h.keeper.Pause())
	h.clock.Set(morning.Add(15 * time.Second))
	assert.Equal(t, 5*time.Second, h.elapsed())
	require.True(t, h.keeper.Resume())
	h.clock.Set(morning.Add(20 * time.Second))

	result, err := h.keeper.Stop(context.Background(), "done")
	require.NoError(t, err)
	require.True(t, result.Stopped)

	assert.Equal(t, 10*time.Second, result.Session.Duration)
	assert.Equal(t, result.Session.Start.Add(result.Session.Duration), result.Session.End)
	assert.Equal(t, "done", result.Session.Notes)
	require.Len(t, h.persistence.sessions, 1)
	assert.Equal(t, result.Session.ID, h.persistence.sessions[0].ID)

	state := h.state()
	assert.Equal(t, model.PhaseIdle, state.phase)
	assert.Zero(t, state.accumulated)
	assert.Nil(t, state.session)
	assert.Equal(t, 0, h.clock.ActiveTickers())
	active, _ := h.host.counts()
	assert.Equal(t, 0, active)
}

func TestPauseResumeContinuity(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))

	h.clock.Set(morning.Add(42 * time.Second))
	before := h.elapsed()
	require.True(t, h.keeper.Pause())
	atPause := h.elapsed()
	require.True(t, h.keeper.Resume())
	atResume := h.elapsed()

	assert.Equal(t, before, atPause)
	assert.Equal(t, atPause, atResume)
	assert.Equal(t, 42*time.Second, h.state().accumulated)

	h.clock.Set(morning.Add(50 * time.Second))
	require.True(t, h.keeper.Pause())
	assert.Equal(t, 50*time.Second, h.state().accumulated)
}

func TestFutureCustomStartShowsZeroUntilItBegins(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2025, 9, 1, 8, 59, 50, 0, time.UTC))
	h.startTimes.set(model.CustomStart{Enabled: true, Hour: 9, Minute: 0})

	require.True(t, h.keeper.Start(StartRequest{}))
	snapshot := h.keeper.Snapshot()
	assert.Zero(t, snapshot.Elapsed)
	assert.Equal(t, 10*time.Second, snapshot.Countdown)

	h.clock.Advance(9999 * time.Millisecond)
	assert.Zero(t, h.elapsed())

	h.clock.Set(time.Date(2025, 9, 1, 9, 0, 4, 0, time.UTC))
	assert.Equal(t, 4*time.Second, h.elapsed())

	assert.Equal(t, 1, h.startTimes.cleared, "custom start is one-shot")
}

func TestPauseAcrossFutureCustomStartCountsRunningAfterStart(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2025, 9, 1, 8, 59, 50, 0, time.UTC))
	h.startTimes.set(model.CustomStart{Enabled: true, Hour: 9, Minute: 0})

	require.True(t, h.keeper.Start(StartRequest{}))
	h.clock.Advance(5 * time.Second)
	require.True(t, h.keeper.Pause())
	h.clock.Advance(15 * time.Second)
	require.True(t, h.keeper.Resume())
	assert.Zero(t, h.elapsed(), "paused across the declared start")
	h.clock.Advance(5 * time.Second)

	result, err := h.keeper.Stop(context.Background(), "")
	require.NoError(t, err)
	require.True(t, result.Stopped)
	assert.Equal(t, 5*time.Second, result.Session.Duration)
	assert.Equal(t, time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC), result.Session.Start)
	require.Len(t, h.persistence.sessions, 1)
	assert.Equal(t, 5*time.Second, h.persistence.sessions[0].Duration)
}

func TestBackdatedCustomStartCatchesUp(t *testing.T) {
	h := newHarness(t)
	h.startTimes.set(model.CustomStart{Enabled: true, Hour: 9, Minute: 0})

	require.True(t, h.keeper.Start(StartRequest{}))

	assert.Equal(t, time.Hour, h.publisher.last().Elapsed, "display is pre-seeded at start")
	assert.Equal(t, time.Hour, h.elapsed())

	require.True(t, h.keeper.Cancel())
	require.True(t, h.keeper.Start(StartRequest{}))
	assert.Zero(t, h.elapsed(), "flag was consumed by the first start")
}

func TestRetimeWhileRunning(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))
	h.clock.Set(morning.Add(time.Minute))
	require.True(t, h.keeper.Pause())
	require.True(t, h.keeper.Resume())
	accumulated := h.state().accumulated
	runningSince := h.state().runningSince

	h.startTimes.set(model.CustomStart{Enabled: true, Hour: 9, Minute: 31})
	require.True(t, h.keeper.Retime())

	assert.Equal(t, 30*time.Minute, h.elapsed())
	h.clock.Set(morning.Add(time.Minute + 12*time.Second))
	assert.Equal(t, 30*time.Minute+12*time.Second, h.elapsed())

	state := h.state()
	assert.Equal(t, accumulated, state.accumulated)
	assert.Equal(t, runningSince, state.runningSince)
	assert.Equal(t, time.Date(2025, 9, 1, 9, 31, 0, 0, time.UTC), state.session.Start)
}

func TestRetimeIgnoredWithoutCustomStartOrSession(t *testing.T) {
	h := newHarness(t)
	h.startTimes.set(model.CustomStart{Enabled: true, Hour: 9})
	assert.False(t, h.keeper.Retime(), "idle engine cannot be retimed")
	assert.Zero(t, h.startTimes.cleared)

	h.startTimes.set(model.CustomStart{})
	require.True(t, h.keeper.Start(StartRequest{}))
	assert.False(t, h.keeper.Retime())
}

func TestCancelNeverPersists(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{Title: "Draft"}))
	h.clock.Set(morning.Add(30 * time.Second))

	require.True(t, h.keeper.Cancel())

	final := h.publisher.last()
	assert.True(t, final.Ended)
	assert.Equal(t, model.PhaseCancelled, final.Phase)
	assert.Equal(t, 30*time.Second, final.Elapsed)
	assert.Zero(t, h.persistence.calls)
	assert.Equal(t, model.PhaseIdle, h.state().phase)
	assert.Equal(t, 0, h.clock.ActiveTickers())
}

func TestPreconditionViolationsAreNoOps(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.keeper.Pause())
	assert.False(t, h.keeper.Resume())
	assert.False(t, h.keeper.Cancel())
	result, err := h.keeper.Stop(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Stopped)
	assert.Empty(t, h.publisher.all())

	require.True(t, h.keeper.Start(StartRequest{}))
	published := len(h.publisher.all())
	assert.False(t, h.keeper.Start(StartRequest{Title: "again"}))
	assert.False(t, h.keeper.Resume())
	assert.Len(t, h.publisher.all(), published)
	assert.Zero(t, h.persistence.calls)
}

func TestToggleIsIdempotent(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.keeper.Toggle(true))
	assert.False(t, h.keeper.Toggle(true))
	assert.Equal(t, model.PhaseRunning, h.state().phase)

	assert.True(t, h.keeper.Toggle(false))
	assert.False(t, h.keeper.Toggle(false))
	assert.Equal(t, model.PhasePaused, h.state().phase)

	assert.True(t, h.keeper.Toggle(true))
	assert.Equal(t, model.PhaseRunning, h.state().phase)
	_, begun := h.host.counts()
	assert.Equal(t, 1, begun)
}

func TestStopRetriesPersistenceOnce(t *testing.T) {
	h := newHarness(t)
	h.persistence.failures = 1
	require.True(t, h.keeper.Start(StartRequest{}))

	_, err := h.keeper.Stop(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, h.persistence.calls)
	assert.Len(t, h.persistence.sessions, 1)
}

func TestStopSurfacesPersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.persistence.failures = 5
	require.True(t, h.keeper.Start(StartRequest{Title: "Kept"}))
	h.clock.Set(morning.Add(time.Minute))

	result, err := h.keeper.Stop(context.Background(), "notes")
	require.ErrorIs(t, err, ErrPersist)
	assert.True(t, result.Stopped)
	assert.Equal(t, "Kept", result.Session.Title)
	assert.Equal(t, time.Minute, result.Session.Duration)
	assert.Equal(t, 2, h.persistence.calls)
	assert.Equal(t, model.PhaseIdle, h.state().phase)
}

func TestTickPublishesProgress(t *testing.T) {
	h := newHarness(t)
	events := h.keeper.Subscribe(16)
	require.True(t, h.keeper.Start(StartRequest{}))

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		last := h.publisher.last()
		return !last.Immediate && last.Elapsed == time.Second
	}, time.Second, 5*time.Millisecond)

	sawProgress := false
	for !sawProgress {
		select {
		case event := <-events:
			sawProgress = event.Type == EventProgress
		case <-time.After(time.Second):
			t.Fatal("no progress event")
		}
	}
}

func TestTickCadenceGuard(t *testing.T) {
	ticker := newTicker(clock.NewFake(morning), time.Second)
	ticker.activate(morning)

	assert.False(t, ticker.due(morning.Add(500*time.Millisecond)))
	assert.True(t, ticker.due(morning.Add(time.Second)))
	assert.False(t, ticker.due(morning.Add(1500*time.Millisecond)))
	assert.True(t, ticker.due(morning.Add(1980*time.Millisecond)), "5% jitter is tolerated")
	assert.True(t, ticker.due(morning.Add(-time.Hour)), "clock moving backwards resets the guard")
}

func TestTickerActivateIsIdempotent(t *testing.T) {
	fake := clock.NewFake(morning)
	ticker := newTicker(fake, time.Second)
	ticker.activate(morning)
	ticker.activate(morning)
	assert.Equal(t, 1, fake.ActiveTickers())
	ticker.deactivate()
	assert.Nil(t, ticker.C())
	assert.Equal(t, 0, fake.ActiveTickers())
}

func TestNoTicksAfterStop(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))
	_, err := h.keeper.Stop(context.Background(), "")
	require.NoError(t, err)
	published := len(h.publisher.all())

	h.clock.Advance(3 * time.Second)
	h.keeper.Snapshot()
	assert.Len(t, h.publisher.all(), published)
}

func TestBackgroundedTickRenewsGuard(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))
	h.keeper.SetBackgrounded(true)

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		_, begun := h.host.counts()
		return begun >= 2
	}, time.Second, 5*time.Millisecond)
	active, _ := h.host.counts()
	assert.Equal(t, 1, active, "renewal releases the previous grant")
}

func TestGuardExpiryReacquires(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.keeper.Start(StartRequest{}))

	h.host.expireAll()
	require.Eventually(t, func() bool {
		active, begun := h.host.counts()
		return active == 1 && begun == 2
	}, time.Second, 5*time.Millisecond)
}

func TestGuardDeniedDoesNotStopSession(t *testing.T) {
	h := newHarness(t)
	h.host.denyAll = true
	require.True(t, h.keeper.Start(StartRequest{}))
	h.clock.Set(morning.Add(3 * time.Second))
	assert.Equal(t, 3*time.Second, h.elapsed())
}

func TestRunShutdownClosesObservers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := clock.NewFake(morning)
	keeper := New(model.EngineConfig{}, Deps{Clock: fake, Logger: zerolog.Nop()})
	events := keeper.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- keeper.Run(ctx) }()

	require.True(t, keeper.Start(StartRequest{}))
	cancel()
	require.NoError(t, <-done)

	assert.False(t, keeper.Pause(), "operations after shutdown are ignored")
	assert.Equal(t, 0, fake.ActiveTickers())
	for range events {
	}
	assert.Error(t, keeper.Run(context.Background()))
}
