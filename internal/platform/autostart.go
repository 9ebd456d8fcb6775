package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Autostart registers the tray app to launch at login.
type Autostart struct {
	appName string
	// entryDir overrides the OS location; used by tests.
	entryDir string
}

// NewAutostart returns the login item manager for appName.
func NewAutostart(appName string) *Autostart {
	return &Autostart{appName: appName}
}

// ConfigDir returns the per-user configuration directory for appName.
func ConfigDir(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err == nil && configDir != "" {
		return filepath.Join(configDir, appName), nil
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		return "", fmt.Errorf("resolve config dir: %w", homeErr)
	}
	return filepath.Join(fallbackConfigDir(homeDir), appName), nil
}

// Enable registers execPath to run at login.
func (autostart *Autostart) Enable(execPath string) error {
	if strings.TrimSpace(execPath) == "" {
		return fmt.Errorf("enable autostart: exec path is empty")
	}
	if err := autostart.enable(execPath); err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}
	return nil
}

// Disable removes the login registration. Disabling twice is not an error.
func (autostart *Autostart) Disable() error {
	if err := autostart.disable(); err != nil {
		return fmt.Errorf("disable autostart: %w", err)
	}
	return nil
}

// Enabled reports whether a login registration exists.
func (autostart *Autostart) Enabled() (bool, error) {
	return autostart.enabled()
}

func (autostart *Autostart) slug() string {
	name := strings.ToLower(strings.TrimSpace(autostart.appName))
	if name == "" {
		name = "focustimer"
	}
	return strings.ReplaceAll(name, " ", "-")
}
