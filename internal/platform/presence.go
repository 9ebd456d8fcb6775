package platform

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// PresenceMonitor polls an IdleProvider and reports when the user goes away
// and comes back.
type PresenceMonitor struct {
	provider  IdleProvider
	threshold time.Duration
	interval  time.Duration
	onChange  func(away bool)
	logger    zerolog.Logger
}

// NewPresenceMonitor creates a monitor. onChange(true) fires once idle time
// reaches threshold and onChange(false) fires when input resumes.
func NewPresenceMonitor(provider IdleProvider, threshold, interval time.Duration, onChange func(away bool), logger zerolog.Logger) *PresenceMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PresenceMonitor{
		provider:  provider,
		threshold: threshold,
		interval:  interval,
		onChange:  onChange,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled. It returns nil immediately when idle
// detection is unsupported or disabled.
func (monitor *PresenceMonitor) Run(ctx context.Context) error {
	if monitor.provider == nil || monitor.threshold <= 0 {
		return nil
	}

	pollTicker := time.NewTicker(monitor.interval)
	defer pollTicker.Stop()

	away := false
	for {
		idle, err := monitor.provider.IdleDuration()
		switch {
		case errors.Is(err, ErrIdleUnsupported):
			monitor.logger.Info().Msg("idle detection unsupported, presence monitor disabled")
			return nil
		case err != nil:
			monitor.logger.Warn().Err(err).Msg("read idle duration")
		default:
			nowAway := idle >= monitor.threshold
			if nowAway != away {
				away = nowAway
				monitor.logger.Debug().Bool("away", away).Dur("idle", idle).Msg("presence changed")
				monitor.onChange(away)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
		}
	}
}
