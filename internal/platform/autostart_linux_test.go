//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutostartDesktopEntry(t *testing.T) {
	autostart := &Autostart{appName: "Focus Timer", entryDir: t.TempDir()}

	enabled, err := autostart.Enabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, autostart.Enable("/opt/focus timer/focustimer"))
	enabled, err = autostart.Enabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	content, err := os.ReadFile(filepath.Join(autostart.entryDir, "focus-timer.desktop"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Name=Focus Timer\n")
	assert.Contains(t, string(content), `Exec="/opt/focus timer/focustimer"`)

	require.NoError(t, autostart.Disable())
	require.NoError(t, autostart.Disable())
	enabled, err = autostart.Enabled()
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestAutostartRejectsEmptyPath(t *testing.T) {
	autostart := &Autostart{appName: "focustimer", entryDir: t.TempDir()}
	assert.Error(t, autostart.Enable(" "))
}

func TestParseIdleMillis(t *testing.T) {
	idle, err := parseIdleMillis("1500\n")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, idle)

	idle, err = parseIdleMillis("-3")
	require.NoError(t, err)
	assert.Zero(t, idle)

	_, err = parseIdleMillis("n/a")
	assert.Error(t, err)
}
