// Package clock abstracts wall-clock time so the engine can be driven
// deterministically in tests.
package clock

import "time"

// Clock provides the current time and recurring tickers.
type Clock interface {
	Now() time.Time
	NewTicker(period time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// Real returns a Clock backed by package time.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTicker(period time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(period)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (ticker *realTicker) C() <-chan time.Time {
	return ticker.ticker.C
}

func (ticker *realTicker) Stop() {
	ticker.ticker.Stop()
}
