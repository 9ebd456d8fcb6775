package platform

import (
	"fmt"
	"sync"
	"time"

	"focustimer/internal/core/guard"
)

// GraceHost issues background grants that expire after a fixed period, the
// desktop stand-in for an OS background task allowance.
type GraceHost struct {
	mu     sync.Mutex
	period time.Duration
	next   guard.GrantID
	timers map[guard.GrantID]*time.Timer
}

// NewGraceHost creates a host whose grants last period.
func NewGraceHost(period time.Duration) *GraceHost {
	return &GraceHost{
		period: period,
		timers: make(map[guard.GrantID]*time.Timer),
	}
}

// BeginGrant starts a grant. onExpire runs on a timer goroutine once the
// period elapses unless EndGrant is called first.
func (host *GraceHost) BeginGrant(onExpire func()) (guard.GrantID, error) {
	if host.period <= 0 {
		return 0, fmt.Errorf("begin grant: grace period is %s", host.period)
	}

	host.mu.Lock()
	defer host.mu.Unlock()

	host.next++
	id := host.next
	host.timers[id] = time.AfterFunc(host.period, func() {
		host.mu.Lock()
		_, live := host.timers[id]
		delete(host.timers, id)
		host.mu.Unlock()
		if live {
			onExpire()
		}
	})
	return id, nil
}

// EndGrant cancels the grant. Unknown IDs are ignored.
func (host *GraceHost) EndGrant(id guard.GrantID) {
	host.mu.Lock()
	defer host.mu.Unlock()
	if timer, ok := host.timers[id]; ok {
		timer.Stop()
		delete(host.timers, id)
	}
}

// Outstanding returns the number of live grants.
func (host *GraceHost) Outstanding() int {
	host.mu.Lock()
	defer host.mu.Unlock()
	return len(host.timers)
}
