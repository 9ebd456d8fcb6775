package preferences

import (
	"time"

	"focustimer/internal/core/model"
	"focustimer/internal/core/publisher"
)

// Mirror backends.
const (
	MirrorNone  = "none"
	MirrorFile  = "file"
	MirrorRedis = "redis"
)

// Settings defines editable user preferences.
type Settings struct {
	DefaultTitle    string
	PlannedDuration time.Duration
	TickInterval    time.Duration
	GracePeriod     time.Duration
	IdleThreshold   time.Duration
	CustomStart     model.CustomStart

	MirrorBackend string
	MirrorPath    string
	RedisAddr     string
	DatabasePath  string
	LogLevel      string
}

// DefaultSettings returns default settings for focustimer.
func DefaultSettings() Settings {
	return Settings{
		DefaultTitle:    "Focus",
		PlannedDuration: 25 * time.Minute,
		TickInterval:    time.Second,
		GracePeriod:     3 * time.Minute,
		IdleThreshold:   5 * time.Minute,
		CustomStart:     model.CustomStart{Hour: 9},
		MirrorBackend:   MirrorFile,
		LogLevel:        "info",
	}
}

// EngineConfig converts settings to the TimeKeeper configuration.
func (settings Settings) EngineConfig() model.EngineConfig {
	config := model.DefaultEngineConfig()
	if settings.TickInterval > 0 {
		config.TickInterval = settings.TickInterval
	}
	if settings.DefaultTitle != "" {
		config.DefaultTitle = settings.DefaultTitle
	}
	config.DefaultPlanned = settings.PlannedDuration
	return config
}

// PublisherConfig converts settings to the publisher configuration.
func (settings Settings) PublisherConfig() publisher.Config {
	config := publisher.DefaultConfig()
	if settings.TickInterval > 0 {
		config.Interval = settings.TickInterval
	}
	return config
}
