// Package guard manages the background continuation grant that keeps the
// ticker alive for a bounded time after the host loses foreground focus.
package guard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnavailable indicates no host is configured to hand out grants.
var ErrUnavailable = errors.New("background continuation unavailable")

// GrantID identifies a grant issued by a Host.
type GrantID uint64

// Host issues time-bounded grants. onExpire is called from a goroutine owned by
// the host when it revokes or expires the grant; it must not be called from
// within BeginGrant.
type Host interface {
	BeginGrant(onExpire func()) (GrantID, error)
	EndGrant(id GrantID)
}

// Handle refers to one acquisition. The zero Handle refers to nothing.
type Handle struct {
	token uint64
}

// Valid reports whether the handle came from a successful Acquire.
func (handle Handle) Valid() bool {
	return handle.token != 0
}

type grant struct {
	token uint64
	id    GrantID
}

// Guard holds at most one grant at a time.
type Guard struct {
	mu       sync.Mutex
	host     Host
	current  *grant
	next     uint64
	onExpiry func()
	logger   zerolog.Logger
}

// New creates a Guard. onExpiry runs whenever the host expires the current grant.
func New(host Host, onExpiry func(), logger zerolog.Logger) *Guard {
	return &Guard{
		host:     host,
		onExpiry: onExpiry,
		logger:   logger,
	}
}

// SetExpiryHandler replaces the expiry callback.
func (guard *Guard) SetExpiryHandler(onExpiry func()) {
	guard.mu.Lock()
	guard.onExpiry = onExpiry
	guard.mu.Unlock()
}

// Acquire requests a grant. An unreleased grant is ended first so that two
// grants are never held together.
func (guard *Guard) Acquire() (Handle, error) {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	if guard.host == nil {
		return Handle{}, ErrUnavailable
	}
	guard.releaseLocked()

	guard.next++
	token := guard.next
	id, err := guard.host.BeginGrant(func() {
		guard.expire(token)
	})
	if err != nil {
		return Handle{}, fmt.Errorf("begin grant: %w", err)
	}
	guard.current = &grant{token: token, id: id}
	return Handle{token: token}, nil
}

// Release ends the grant behind handle. Stale handles are ignored.
func (guard *Guard) Release(handle Handle) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	if guard.current == nil || guard.current.token != handle.token {
		return
	}
	guard.releaseLocked()
}

// Active reports whether a grant is currently held.
func (guard *Guard) Active() bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	return guard.current != nil
}

func (guard *Guard) releaseLocked() {
	if guard.current == nil {
		return
	}
	guard.host.EndGrant(guard.current.id)
	guard.current = nil
}

func (guard *Guard) expire(token uint64) {
	guard.mu.Lock()
	if guard.current == nil || guard.current.token != token {
		guard.mu.Unlock()
		return
	}
	guard.current = nil
	callback := guard.onExpiry
	guard.mu.Unlock()

	guard.logger.Debug().Uint64("token", token).Msg("background grant expired")
	if callback != nil {
		callback()
	}
}
