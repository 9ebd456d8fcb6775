package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (fake *Fake) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.now
}

// Set jumps the clock to t without firing tickers. Moving backwards is allowed.
func (fake *Fake) Set(t time.Time) {
	fake.mu.Lock()
	fake.now = t
	fake.mu.Unlock()
}

// Advance moves the clock forward and fires every ticker whose deadline passed.
// Like time.Ticker, a ticker with an undelivered tick drops further ticks.
func (fake *Fake) Advance(d time.Duration) {
	fake.mu.Lock()
	fake.now = fake.now.Add(d)
	now := fake.now
	live := fake.tickers[:0]
	for _, ticker := range fake.tickers {
		if ticker.stopped {
			continue
		}
		live = append(live, ticker)
		if now.Before(ticker.next) {
			continue
		}
		for !now.Before(ticker.next) {
			ticker.next = ticker.next.Add(ticker.period)
		}
		select {
		case ticker.ch <- now:
		default:
		}
	}
	fake.tickers = live
	fake.mu.Unlock()
}

// NewTicker registers a ticker that fires on Advance.
func (fake *Fake) NewTicker(period time.Duration) Ticker {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	ticker := &fakeTicker{
		owner:  fake,
		period: period,
		next:   fake.now.Add(period),
		ch:     make(chan time.Time, 1),
	}
	fake.tickers = append(fake.tickers, ticker)
	return ticker
}

// ActiveTickers reports how many tickers have not been stopped.
func (fake *Fake) ActiveTickers() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	count := 0
	for _, ticker := range fake.tickers {
		if !ticker.stopped {
			count++
		}
	}
	return count
}

type fakeTicker struct {
	owner   *Fake
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (ticker *fakeTicker) C() <-chan time.Time {
	return ticker.ch
}

func (ticker *fakeTicker) Stop() {
	ticker.owner.mu.Lock()
	ticker.stopped = true
	ticker.owner.mu.Unlock()
}
