package timekeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"focustimer/internal/core/accounting"
	"focustimer/internal/core/clock"
	"focustimer/internal/core/guard"
	"focustimer/internal/core/model"
	"focustimer/internal/metrics"
)

// ErrPersist indicates the finished session could not be stored. The session
// is returned alongside the error so the caller can retry later.
var ErrPersist = errors.New("persist session")

// Deps are the collaborators of a TimeKeeper. Only Clock is required.
type Deps struct {
	Clock       clock.Clock
	Persistence Persistence
	StartTimes  StartTimeSource
	Publisher   Publisher
	Guard       ContinuationGuard
	Logger      zerolog.Logger
}

// StartRequest describes a session to start.
type StartRequest struct {
	Title      string
	Tags       []string
	LinkedTask string
	// Planned overrides the configured default planned duration when positive.
	Planned time.Duration
}

// StopResult is returned by Stop.
type StopResult struct {
	Session model.Session
	// Stopped is false when Stop was ignored because no session was active.
	Stopped bool
}

// engineState is owned by the Run goroutine.
type engineState struct {
	phase        model.Phase
	session      *model.Session
	origin       time.Time
	runningSince time.Time
	accumulated  time.Duration
	pauses       []accounting.Interval
	display      accounting.Result
	lastPublish  time.Time
}

// TimeKeeper is the focus session state machine. All state transitions and
// ticks run on the goroutine started by Run; public methods submit work to it
// and wait for the result.
type TimeKeeper struct {
	config model.EngineConfig
	deps   Deps
	logger zerolog.Logger

	state        engineState
	ticker       *ticker
	guardHandle  guard.Handle
	backgrounded bool

	ops     chan func()
	done    chan struct{}
	running atomic.Bool

	mu     sync.Mutex
	events []chan Event
}

// New creates a TimeKeeper in the idle phase.
func New(config model.EngineConfig, deps Deps) *TimeKeeper {
	defaults := model.DefaultEngineConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.DefaultTitle == "" {
		config.DefaultTitle = defaults.DefaultTitle
	}
	if config.PersistRetries < 0 {
		config.PersistRetries = 0
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	keeper := &TimeKeeper{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		state:  engineState{phase: model.PhaseIdle},
		ticker: newTicker(deps.Clock, config.TickInterval),
		ops:    make(chan func()),
		done:   make(chan struct{}),
	}
	if deps.Guard != nil {
		deps.Guard.SetExpiryHandler(keeper.onGuardExpired)
	}
	return keeper
}

// Subscribe registers a new observer channel. Slow observers miss events.
func (keeper *TimeKeeper) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	keeper.mu.Lock()
	keeper.events = append(keeper.events, ch)
	keeper.mu.Unlock()
	return ch
}

// Run owns the engine state until ctx is cancelled. It closes all observer
// channels on return. Run may only be called once.
func (keeper *TimeKeeper) Run(ctx context.Context) error {
	if !keeper.running.CompareAndSwap(false, true) {
		return errors.New("timekeeper: already running")
	}
	defer keeper.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-keeper.ops:
			op()
		case <-keeper.ticker.C():
			keeper.tick()
		}
	}
}

func (keeper *TimeKeeper) shutdown() {
	keeper.ticker.deactivate()
	keeper.releaseGuard()
	close(keeper.done)

	keeper.mu.Lock()
	events := keeper.events
	keeper.events = nil
	keeper.mu.Unlock()
	for _, ch := range events {
		close(ch)
	}
}

// do runs op on the owner goroutine and waits for it. It reports false when
// the engine has shut down.
func (keeper *TimeKeeper) do(op func()) bool {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		op()
	}
	select {
	case keeper.ops <- wrapped:
	case <-keeper.done:
		return false
	}
	<-finished
	return true
}

// post runs op on the owner goroutine without waiting.
func (keeper *TimeKeeper) post(op func()) {
	go keeper.do(op)
}

// Start begins a new session. It is ignored unless the engine is idle.
func (keeper *TimeKeeper) Start(request StartRequest) bool {
	applied := false
	keeper.do(func() { applied = keeper.start(request) })
	return applied
}

// Pause freezes a running session.
func (keeper *TimeKeeper) Pause() bool {
	applied := false
	keeper.do(func() { applied = keeper.pause() })
	return applied
}

// Resume continues a paused session.
func (keeper *TimeKeeper) Resume() bool {
	applied := false
	keeper.do(func() { applied = keeper.resume() })
	return applied
}

// Stop finalizes the active session and hands it to persistence exactly once.
// A persistence failure is retried and then returned wrapping ErrPersist; the
// engine is idle either way.
func (keeper *TimeKeeper) Stop(ctx context.Context, notes string) (StopResult, error) {
	var result StopResult
	keeper.do(func() { result = keeper.stop(notes) })
	if !result.Stopped {
		return result, nil
	}
	if err := keeper.persist(ctx, result.Session); err != nil {
		return result, err
	}
	return result, nil
}

// Cancel discards the active session without persisting it.
func (keeper *TimeKeeper) Cancel() bool {
	applied := false
	keeper.do(func() { applied = keeper.cancel() })
	return applied
}

// Retime re-reads the custom start setting and moves the active session's
// declared start to it.
func (keeper *TimeKeeper) Retime() bool {
	applied := false
	keeper.do(func() { applied = keeper.retime() })
	return applied
}

// Toggle drives the engine toward running (start or resume) or paused.
// Repeating the same request has no further effect.
func (keeper *TimeKeeper) Toggle(running bool) bool {
	applied := false
	keeper.do(func() {
		switch {
		case running && keeper.state.phase == model.PhaseIdle:
			applied = keeper.start(StartRequest{})
		case running && keeper.state.phase == model.PhasePaused:
			applied = keeper.resume()
		case !running && keeper.state.phase == model.PhaseRunning:
			applied = keeper.pause()
		default:
			keeper.ignored("toggle")
		}
	})
	return applied
}

// SetBackgrounded tells the engine whether the host lost foreground focus.
func (keeper *TimeKeeper) SetBackgrounded(backgrounded bool) {
	keeper.do(func() {
		keeper.backgrounded = backgrounded
		if backgrounded && keeper.state.phase.Active() && !keeper.guardHandle.Valid() {
			keeper.acquireGuard()
		}
	})
}

// Snapshot returns the current state, recomputed at the current time.
func (keeper *TimeKeeper) Snapshot() model.Snapshot {
	snapshot := model.Snapshot{Phase: model.PhaseIdle}
	keeper.do(func() {
		now := keeper.deps.Clock.Now()
		if keeper.state.phase.Active() {
			keeper.refresh(now)
		}
		snapshot = keeper.snapshot(now)
	})
	return snapshot
}

func (keeper *TimeKeeper) start(request StartRequest) bool {
	if keeper.state.phase != model.PhaseIdle {
		keeper.ignored("start")
		return false
	}

	now := keeper.deps.Clock.Now()
	startAt := now
	if custom, ok := keeper.consumeCustomStart(); ok {
		startAt = custom.Resolve(now)
	}

	title := request.Title
	if title == "" {
		title = keeper.config.DefaultTitle
	}
	planned := request.Planned
	if planned <= 0 {
		planned = keeper.config.DefaultPlanned
	}

	session := model.NewSession(title, startAt, planned, request.Tags, request.LinkedTask)
	keeper.state = engineState{
		phase:        model.PhaseRunning,
		session:      &session,
		origin:       now,
		runningSince: now,
	}
	keeper.ticker.activate(now)
	keeper.acquireGuard()
	keeper.refresh(now)
	keeper.publish(now, true)
	keeper.applied("start", now)

	keeper.logger.Info().
		Str("session_id", session.ID).
		Str("title", title).
		Time("start", startAt).
		Dur("elapsed", keeper.state.display.Elapsed).
		Msg("session started")
	return true
}

func (keeper *TimeKeeper) pause() bool {
	if keeper.state.phase != model.PhaseRunning {
		keeper.ignored("pause")
		return false
	}

	now := keeper.deps.Clock.Now()
	if interval := now.Sub(keeper.state.runningSince); interval > 0 {
		keeper.state.accumulated += interval
	}
	keeper.state.runningSince = time.Time{}
	keeper.state.pauses = append(keeper.state.pauses, accounting.Interval{From: now})
	keeper.state.phase = model.PhasePaused
	keeper.ticker.deactivate()
	keeper.refresh(now)
	keeper.publish(now, true)
	keeper.applied("pause", now)
	return true
}

func (keeper *TimeKeeper) resume() bool {
	if keeper.state.phase != model.PhasePaused {
		keeper.ignored("resume")
		return false
	}

	now := keeper.deps.Clock.Now()
	if last := len(keeper.state.pauses) - 1; last >= 0 {
		keeper.state.pauses[last].To = now
	}
	keeper.state.runningSince = now
	keeper.state.phase = model.PhaseRunning
	keeper.ticker.activate(now)
	if !keeper.guardHandle.Valid() {
		keeper.acquireGuard()
	}
	keeper.refresh(now)
	keeper.publish(now, true)
	keeper.applied("resume", now)
	return true
}

func (keeper *TimeKeeper) stop(notes string) StopResult {
	if !keeper.state.phase.Active() {
		keeper.ignored("stop")
		return StopResult{}
	}

	now := keeper.deps.Clock.Now()
	keeper.refresh(now)
	finished := keeper.state.session.Finalize(notes, keeper.state.display.Elapsed)

	keeper.finish(model.PhaseCompleted, now)
	keeper.applied("stop", now)

	keeper.logger.Info().
		Str("session_id", finished.ID).
		Dur("duration", finished.Duration).
		Msg("session completed")
	return StopResult{Session: finished, Stopped: true}
}

func (keeper *TimeKeeper) cancel() bool {
	if !keeper.state.phase.Active() {
		keeper.ignored("cancel")
		return false
	}

	now := keeper.deps.Clock.Now()
	keeper.refresh(now)
	sessionID := keeper.state.session.ID
	keeper.finish(model.PhaseCancelled, now)
	keeper.applied("cancel", now)

	keeper.logger.Info().Str("session_id", sessionID).Msg("session cancelled")
	return true
}

// finish publishes the final snapshot for terminal, stops the ticker before
// releasing the guard and returns the engine to idle with zeroed counters.
func (keeper *TimeKeeper) finish(terminal model.Phase, now time.Time) {
	keeper.state.phase = terminal
	final := keeper.snapshot(now)
	final.Ended = true
	final.Immediate = true
	if keeper.deps.Publisher != nil {
		keeper.deps.Publisher.Publish(final)
	}
	keeper.emit(Event{Type: EventStateChange, Phase: terminal, Snapshot: final, At: now})

	keeper.ticker.deactivate()
	keeper.releaseGuard()
	keeper.state = engineState{phase: model.PhaseIdle}
	metrics.SessionElapsedSeconds.Set(0)
}

func (keeper *TimeKeeper) retime() bool {
	if !keeper.state.phase.Active() {
		keeper.ignored("retime")
		return false
	}
	custom, ok := keeper.consumeCustomStart()
	if !ok {
		keeper.ignored("retime")
		return false
	}

	now := keeper.deps.Clock.Now()
	keeper.state.session.Start = custom.Resolve(now)
	keeper.refresh(now)
	snapshot := keeper.publish(now, true)
	metrics.IncTransition("retime", true)
	keeper.emit(Event{Type: EventRetimed, Phase: keeper.state.phase, Snapshot: snapshot, At: now})

	keeper.logger.Info().
		Str("session_id", keeper.state.session.ID).
		Time("start", keeper.state.session.Start).
		Dur("elapsed", keeper.state.display.Elapsed).
		Msg("session retimed")
	return true
}

func (keeper *TimeKeeper) tick() {
	now := keeper.deps.Clock.Now()
	if !keeper.state.phase.Active() || !keeper.ticker.due(now) {
		metrics.TicksTotal.WithLabelValues("skipped").Inc()
		return
	}
	metrics.TicksTotal.WithLabelValues("processed").Inc()

	keeper.refresh(now)
	snapshot := keeper.publish(now, false)
	keeper.emit(Event{Type: EventProgress, Phase: keeper.state.phase, Snapshot: snapshot, At: now})

	if keeper.backgrounded {
		metrics.IncGuard("renew")
		keeper.acquireGuard()
	}
}

func (keeper *TimeKeeper) refresh(now time.Time) {
	session := keeper.state.session
	if session == nil {
		keeper.state.display = accounting.Result{}
		return
	}
	keeper.state.display = accounting.Compute(accounting.Input{
		Start:        session.Start,
		Origin:       keeper.state.origin,
		Accumulated:  keeper.state.accumulated,
		RunningSince: keeper.state.runningSince,
		Pauses:       keeper.state.pauses,
		Planned:      session.Planned,
		Now:          now,
	})
	metrics.SessionElapsedSeconds.Set(keeper.state.display.Elapsed.Seconds())
}

func (keeper *TimeKeeper) snapshot(now time.Time) model.Snapshot {
	snapshot := model.Snapshot{Phase: keeper.state.phase, At: now}
	if session := keeper.state.session; session != nil {
		snapshot.SessionID = session.ID
		snapshot.Title = session.Title
		snapshot.Planned = session.Planned
		snapshot.Elapsed = keeper.state.display.Elapsed
		snapshot.Remaining = keeper.state.display.Remaining
		snapshot.HasRemaining = keeper.state.display.HasRemaining
		snapshot.Countdown = keeper.state.display.Countdown
	}
	return snapshot
}

func (keeper *TimeKeeper) publish(now time.Time, immediate bool) model.Snapshot {
	snapshot := keeper.snapshot(now)
	snapshot.Immediate = immediate
	if keeper.deps.Publisher != nil {
		keeper.deps.Publisher.Publish(snapshot)
	}
	keeper.state.lastPublish = now
	return snapshot
}

func (keeper *TimeKeeper) consumeCustomStart() (model.CustomStart, bool) {
	if keeper.deps.StartTimes == nil {
		return model.CustomStart{}, false
	}
	custom, err := keeper.deps.StartTimes.CustomStart()
	if err != nil {
		keeper.logger.Warn().Err(err).Msg("read custom start time")
		return model.CustomStart{}, false
	}
	if !custom.Enabled {
		return model.CustomStart{}, false
	}
	if err := keeper.deps.StartTimes.ClearCustomStart(); err != nil {
		keeper.logger.Warn().Err(err).Msg("clear custom start time")
	}
	return custom, true
}

func (keeper *TimeKeeper) acquireGuard() {
	if keeper.deps.Guard == nil {
		return
	}
	handle, err := keeper.deps.Guard.Acquire()
	if err != nil {
		metrics.IncGuard("denied")
		keeper.guardHandle = guard.Handle{}
		keeper.logger.Warn().Err(err).Msg("background continuation denied")
		return
	}
	metrics.IncGuard("acquire")
	keeper.guardHandle = handle
}

func (keeper *TimeKeeper) releaseGuard() {
	if keeper.deps.Guard == nil || !keeper.guardHandle.Valid() {
		return
	}
	keeper.deps.Guard.Release(keeper.guardHandle)
	keeper.guardHandle = guard.Handle{}
	metrics.IncGuard("release")
}

// onGuardExpired runs on the host's goroutine.
func (keeper *TimeKeeper) onGuardExpired() {
	metrics.IncGuard("expire")
	keeper.post(func() {
		keeper.guardHandle = guard.Handle{}
		if !keeper.state.phase.Active() {
			return
		}
		keeper.acquireGuard()
		keeper.emit(Event{
			Type:    EventGuardExpired,
			Phase:   keeper.state.phase,
			Message: "background grant expired",
			At:      keeper.deps.Clock.Now(),
		})
	})
}

func (keeper *TimeKeeper) persist(ctx context.Context, session model.Session) error {
	if keeper.deps.Persistence == nil {
		return nil
	}
	var err error
	for attempt := 0; attempt <= keeper.config.PersistRetries; attempt++ {
		if err = keeper.deps.Persistence.AppendSession(ctx, session); err == nil {
			return nil
		}
		keeper.logger.Warn().
			Err(err).
			Str("session_id", session.ID).
			Int("attempt", attempt+1).
			Msg("persist session failed")
	}
	metrics.PersistFailuresTotal.Inc()
	return fmt.Errorf("%w %s: %w", ErrPersist, session.ID, err)
}

func (keeper *TimeKeeper) applied(op string, now time.Time) {
	metrics.IncTransition(op, true)
	keeper.emit(Event{
		Type:     EventStateChange,
		Phase:    keeper.state.phase,
		Snapshot: keeper.snapshot(now),
		At:       now,
	})
}

func (keeper *TimeKeeper) ignored(op string) {
	metrics.IncTransition(op, false)
	keeper.logger.Debug().
		Str("op", op).
		Str("phase", string(keeper.state.phase)).
		Msg("operation ignored in current phase")
}

func (keeper *TimeKeeper) emit(event Event) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	for _, ch := range keeper.events {
		select {
		case ch <- event:
		default:
		}
	}
}
