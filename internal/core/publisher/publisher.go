// Package publisher fans engine snapshots out to the live status surface and
// the shared mirror without blocking the engine.
package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"focustimer/internal/core/model"
	"focustimer/internal/metrics"
)

// Config contains runtime options for the Publisher.
type Config struct {
	// Interval is the minimum spacing between progress snapshots.
	Interval time.Duration
	// Attempts bounds how often a failing sink call is tried.
	Attempts int
	// CallTimeout bounds a single sink call.
	CallTimeout time.Duration
	// RetryDelay separates attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns the publisher defaults for a 1 Hz engine.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		Attempts:    2,
		CallTimeout: 2 * time.Second,
		RetryDelay:  100 * time.Millisecond,
	}
}

// Publisher delivers snapshots on its own goroutine, started with Run.
type Publisher struct {
	live    LiveStatus
	mirror  Mirror
	config  Config
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	pending     []model.Snapshot
	lastSession string
	lastPhase   model.Phase
	notify      chan struct{}

	// owned by the Run goroutine
	handle        LiveHandle
	handleSession string
	endedSession  string
}

// New creates a Publisher. Either sink may be nil.
func New(live LiveStatus, mirror Mirror, config Config, logger zerolog.Logger) *Publisher {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Attempts <= 0 {
		config.Attempts = defaults.Attempts
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}

	return &Publisher{
		live:    live,
		mirror:  mirror,
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(config.Interval-config.Interval/20), 1),
		notify:  make(chan struct{}, 1),
	}
}

// Publish queues snapshot for delivery and returns immediately. Progress
// snapshots arriving faster than the configured interval are dropped; phase
// changes, immediate and final snapshots always go through.
func (publisher *Publisher) Publish(snapshot model.Snapshot) {
	publisher.mu.Lock()
	transition := snapshot.Ended || snapshot.Immediate ||
		snapshot.SessionID != publisher.lastSession ||
		snapshot.Phase != publisher.lastPhase
	publisher.lastSession = snapshot.SessionID
	publisher.lastPhase = snapshot.Phase

	at := snapshot.At
	if at.IsZero() {
		at = time.Now()
	}
	if !publisher.limiter.AllowN(at, 1) && !transition {
		publisher.mu.Unlock()
		metrics.IncPublishDropped("rate")
		return
	}

	if count := len(publisher.pending); count > 0 && supersedes(snapshot, publisher.pending[count-1]) {
		publisher.pending[count-1] = snapshot
		metrics.IncPublishDropped("superseded")
	} else {
		publisher.pending = append(publisher.pending, snapshot)
	}
	publisher.mu.Unlock()

	select {
	case publisher.notify <- struct{}{}:
	default:
	}
}

// supersedes reports whether next may replace the undelivered previous snapshot.
// Final snapshots are never replaced and never replace anything.
func supersedes(next, previous model.Snapshot) bool {
	return !next.Ended && !previous.Ended && next.SessionID == previous.SessionID
}

// Run delivers queued snapshots until ctx is cancelled. Final snapshots still
// queued at that point are written to the mirror so it does not report a
// session that no longer runs.
func (publisher *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			publisher.flushFinal()
			return nil
		case <-publisher.notify:
			for _, snapshot := range publisher.take() {
				publisher.deliver(ctx, snapshot)
			}
		}
	}
}

func (publisher *Publisher) flushFinal() {
	ctx, cancel := context.WithTimeout(context.Background(), publisher.config.CallTimeout)
	defer cancel()
	for _, snapshot := range publisher.take() {
		if snapshot.Ended && snapshot.SessionID != publisher.endedSession {
			publisher.endedSession = snapshot.SessionID
			publisher.writeMirror(ctx, snapshot)
		}
	}
}

func (publisher *Publisher) take() []model.Snapshot {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	batch := publisher.pending
	publisher.pending = nil
	return batch
}

func (publisher *Publisher) deliver(ctx context.Context, snapshot model.Snapshot) {
	if snapshot.Ended {
		if snapshot.SessionID == publisher.endedSession {
			return
		}
		publisher.endedSession = snapshot.SessionID
		publisher.endLive(ctx, snapshot)
		publisher.writeMirror(ctx, snapshot)
		return
	}

	if snapshot.SessionID == "" || snapshot.SessionID == publisher.endedSession {
		metrics.IncPublishDropped("after_end")
		return
	}
	publisher.updateLive(ctx, snapshot)
	publisher.writeMirror(ctx, snapshot)
}

func (publisher *Publisher) updateLive(ctx context.Context, snapshot model.Snapshot) {
	if publisher.live == nil {
		return
	}
	if publisher.handleSession != snapshot.SessionID {
		attrs := Attributes{SessionID: snapshot.SessionID, Title: snapshot.Title, Planned: snapshot.Planned}
		var handle LiveHandle
		err := publisher.attempt(ctx, "live_begin", func(callCtx context.Context) error {
			var beginErr error
			handle, beginErr = publisher.live.Begin(callCtx, attrs)
			return beginErr
		})
		if err != nil {
			return
		}
		publisher.handle = handle
		publisher.handleSession = snapshot.SessionID
	}

	handle := publisher.handle
	_ = publisher.attempt(ctx, "live_update", func(callCtx context.Context) error {
		return publisher.live.Update(callCtx, handle, snapshot)
	})
}

func (publisher *Publisher) endLive(ctx context.Context, snapshot model.Snapshot) {
	if publisher.live == nil || publisher.handleSession != snapshot.SessionID {
		return
	}
	handle := publisher.handle
	publisher.handle = ""
	publisher.handleSession = ""
	_ = publisher.attempt(ctx, "live_end", func(callCtx context.Context) error {
		return publisher.live.End(callCtx, handle, snapshot)
	})
}

func (publisher *Publisher) writeMirror(ctx context.Context, snapshot model.Snapshot) {
	if publisher.mirror == nil {
		return
	}
	values := MirrorValues(snapshot)
	for _, key := range []string{KeyIsRunning, KeyTitle, KeyElapsedSeconds} {
		value := values[key]
		_ = publisher.attempt(ctx, "mirror", func(callCtx context.Context) error {
			return publisher.mirror.Write(callCtx, key, value)
		})
	}
}

// attempt runs call up to config.Attempts times. Failures are logged and
// counted but never returned to the engine.
func (publisher *Publisher) attempt(ctx context.Context, sink string, call func(context.Context) error) error {
	var err error
	for try := 1; try <= publisher.config.Attempts; try++ {
		callCtx, cancel := context.WithTimeout(ctx, publisher.config.CallTimeout)
		err = call(callCtx)
		cancel()
		metrics.IncPublish(sink, err)
		if err == nil {
			return nil
		}
		if try == publisher.config.Attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(publisher.config.RetryDelay):
		}
	}
	publisher.logger.Warn().
		Err(err).
		Str("sink", sink).
		Int("attempts", publisher.config.Attempts).
		Msg("publish failed")
	return fmt.Errorf("%s: %w", sink, err)
}
