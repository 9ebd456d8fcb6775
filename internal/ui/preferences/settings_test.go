package preferences

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineConfigFromSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.TickInterval = 2 * time.Second
	settings.DefaultTitle = ""

	config := settings.EngineConfig()
	assert.Equal(t, 2*time.Second, config.TickInterval)
	assert.Equal(t, "Focus", config.DefaultTitle)
	assert.Equal(t, 25*time.Minute, config.DefaultPlanned)
	assert.Equal(t, 1, config.PersistRetries)

	assert.Equal(t, 2*time.Second, settings.PublisherConfig().Interval)
}

func TestParseBoundedInt(t *testing.T) {
	value, ok := parseBoundedInt(" 07 ", 0, 23)
	assert.True(t, ok)
	assert.Equal(t, 7, value)

	_, ok = parseBoundedInt("24", 0, 23)
	assert.False(t, ok)
	_, ok = parseBoundedInt("abc", 0, 23)
	assert.False(t, ok)
}
