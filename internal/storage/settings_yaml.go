package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"focustimer/internal/core/model"
	"focustimer/internal/ui/preferences"
)

const settingsFileName = "settings.yaml"

type yamlSettings struct {
	DefaultTitle       string `yaml:"default_title"`
	PlannedMinutes     *int   `yaml:"planned_minutes,omitempty"`
	TickSeconds        int    `yaml:"tick_seconds,omitempty"`
	GraceSeconds       int    `yaml:"grace_seconds,omitempty"`
	IdleMinutes        int    `yaml:"idle_minutes,omitempty"`
	CustomStartEnabled bool   `yaml:"custom_start_enabled"`
	CustomStartHour    int    `yaml:"custom_start_hour"`
	CustomStartMinute  int    `yaml:"custom_start_minute"`
	MirrorBackend      string `yaml:"mirror_backend,omitempty"`
	MirrorPath         string `yaml:"mirror_path,omitempty"`
	RedisAddr          string `yaml:"redis_addr,omitempty"`
	DatabasePath       string `yaml:"database_path,omitempty"`
	LogLevel           string `yaml:"log_level,omitempty"`
}

// SettingsStore reads and writes the YAML settings file. It also serves as the
// source of the one-shot custom start time.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore creates a store for the settings file at path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// DefaultSettingsPath returns the settings file location under the user config dir.
func DefaultSettingsPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, settingsFileName), nil
}

// Path returns the settings file location.
func (store *SettingsStore) Path() string {
	return store.path
}

// Load reads user preferences from YAML.
// If the file does not exist, default settings are returned.
func (store *SettingsStore) Load() (preferences.Settings, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.loadLocked()
}

// Save writes user preferences to YAML atomically.
func (store *SettingsStore) Save(settings preferences.Settings) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.saveLocked(settings)
}

// CustomStart re-reads the settings file and returns the custom start setting.
func (store *SettingsStore) CustomStart() (model.CustomStart, error) {
	settings, err := store.Load()
	if err != nil {
		return model.CustomStart{}, err
	}
	return settings.CustomStart, nil
}

// ClearCustomStart disables the custom start after it has been consumed.
func (store *SettingsStore) ClearCustomStart() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	settings, err := store.loadLocked()
	if err != nil {
		return err
	}
	if !settings.CustomStart.Enabled {
		return nil
	}
	settings.CustomStart.Enabled = false
	return store.saveLocked(settings)
}

func (store *SettingsStore) loadLocked() (preferences.Settings, error) {
	settings := preferences.DefaultSettings()

	rawData, err := os.ReadFile(store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return settings, fmt.Errorf("parse settings yaml: %w", err)
	}

	applyYamlSettings(&settings, fileData)
	return settings, nil
}

func (store *SettingsStore) saveLocked(settings preferences.Settings) error {
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	plannedMinutes := int(settings.PlannedDuration / time.Minute)
	fileData := yamlSettings{
		DefaultTitle:       settings.DefaultTitle,
		PlannedMinutes:     &plannedMinutes,
		TickSeconds:        int(settings.TickInterval / time.Second),
		GraceSeconds:       int(settings.GracePeriod / time.Second),
		IdleMinutes:        int(settings.IdleThreshold / time.Minute),
		CustomStartEnabled: settings.CustomStart.Enabled,
		CustomStartHour:    settings.CustomStart.Hour,
		CustomStartMinute:  settings.CustomStart.Minute,
		MirrorBackend:      settings.MirrorBackend,
		MirrorPath:         settings.MirrorPath,
		RedisAddr:          settings.RedisAddr,
		DatabasePath:       settings.DatabasePath,
		LogLevel:           settings.LogLevel,
	}

	serialized, err := yaml.Marshal(fileData)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := renameio.WriteFile(store.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

func applyYamlSettings(settings *preferences.Settings, fileData yamlSettings) {
	if fileData.DefaultTitle != "" {
		settings.DefaultTitle = fileData.DefaultTitle
	}
	if fileData.PlannedMinutes != nil && *fileData.PlannedMinutes >= 0 {
		settings.PlannedDuration = time.Duration(*fileData.PlannedMinutes) * time.Minute
	}
	if fileData.TickSeconds > 0 {
		settings.TickInterval = time.Duration(fileData.TickSeconds) * time.Second
	}
	if fileData.GraceSeconds > 0 {
		settings.GracePeriod = time.Duration(fileData.GraceSeconds) * time.Second
	}
	if fileData.IdleMinutes > 0 {
		settings.IdleThreshold = time.Duration(fileData.IdleMinutes) * time.Minute
	}

	if fileData.CustomStartHour >= 0 && fileData.CustomStartHour <= 23 &&
		fileData.CustomStartMinute >= 0 && fileData.CustomStartMinute <= 59 {
		settings.CustomStart = model.CustomStart{
			Enabled: fileData.CustomStartEnabled,
			Hour:    fileData.CustomStartHour,
			Minute:  fileData.CustomStartMinute,
		}
	}

	switch fileData.MirrorBackend {
	case preferences.MirrorNone, preferences.MirrorFile, preferences.MirrorRedis:
		settings.MirrorBackend = fileData.MirrorBackend
	}
	if fileData.MirrorPath != "" {
		settings.MirrorPath = fileData.MirrorPath
	}
	if fileData.RedisAddr != "" {
		settings.RedisAddr = fileData.RedisAddr
	}
	if fileData.DatabasePath != "" {
		settings.DatabasePath = fileData.DatabasePath
	}
	if fileData.LogLevel != "" {
		settings.LogLevel = fileData.LogLevel
	}
}
