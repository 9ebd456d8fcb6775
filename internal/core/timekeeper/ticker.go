package timekeeper

import (
	"time"

	"focustimer/internal/core/clock"
)

// ticker wraps a clock ticker with a minimum spacing between accepted fires.
// It is only touched by the TimeKeeper's owner goroutine.
type ticker struct {
	clock    clock.Clock
	period   time.Duration
	slack    time.Duration
	source   clock.Ticker
	lastFire time.Time
}

func newTicker(source clock.Clock, period time.Duration) *ticker {
	return &ticker{
		clock:  source,
		period: period,
		slack:  period / 20,
	}
}

// activate (re)starts the ticker. now counts as the last fire because every
// activation is accompanied by an immediate publish.
func (ticker *ticker) activate(now time.Time) {
	ticker.deactivate()
	ticker.source = ticker.clock.NewTicker(ticker.period)
	ticker.lastFire = now
}

// deactivate stops the ticker; C returns nil afterwards so the owner loop
// never selects a stale fire.
func (ticker *ticker) deactivate() {
	if ticker.source == nil {
		return
	}
	ticker.source.Stop()
	ticker.source = nil
}

func (ticker *ticker) active() bool {
	return ticker.source != nil
}

func (ticker *ticker) C() <-chan time.Time {
	if ticker.source == nil {
		return nil
	}
	return ticker.source.C()
}

// due reports whether enough time passed since the last accepted fire and
// records now as the new last fire when it did.
func (ticker *ticker) due(now time.Time) bool {
	if now.Before(ticker.lastFire) {
		// wall clock moved backwards
		ticker.lastFire = now
		return true
	}
	if now.Sub(ticker.lastFire) < ticker.period-ticker.slack {
		return false
	}
	ticker.lastFire = now
	return true
}
