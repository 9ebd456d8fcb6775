package model

import "time"

// CustomStart is the user's "start the next session at hh:mm" setting.
type CustomStart struct {
	Enabled bool
	Hour    int
	Minute  int
}

// Resolve returns today's date at the configured hour and minute, in now's location.
func (custom CustomStart) Resolve(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, clampInt(custom.Hour, 0, 23), clampInt(custom.Minute, 0, 59), 0, 0, now.Location())
}

// EngineConfig contains runtime settings for the TimeKeeper state machine.
type EngineConfig struct {
	TickInterval   time.Duration
	DefaultTitle   string
	DefaultPlanned time.Duration
	PersistRetries int
}

// DefaultEngineConfig returns the settings used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:   time.Second,
		DefaultTitle:   "Focus",
		PersistRetries: 1,
	}
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
