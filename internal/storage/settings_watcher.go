package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultWatchDebounce = 300 * time.Millisecond

// SettingsWatcher reports changes to the settings file.
type SettingsWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   zerolog.Logger
}

// NewSettingsWatcher creates a watcher that calls onChange after the file at
// path has settled. A debounce of zero uses the default.
func NewSettingsWatcher(path string, debounce time.Duration, onChange func(), logger zerolog.Logger) *SettingsWatcher {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &SettingsWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched because
// atomic saves replace the file.
func (watcher *SettingsWatcher) Run(ctx context.Context) error {
	directory := filepath.Dir(watcher.path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsWatcher.Close() }()

	if err := fsWatcher.Add(directory); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	watcher.logger.Info().
		Str("event", "settings.watcher_started").
		Str("path", watcher.path).
		Msg("watching settings file for changes")

	fileName := filepath.Base(watcher.path)
	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			watcher.logger.Info().Str("event", "settings.watcher_stopped").Msg("settings watcher stopped")
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			watcher.logger.Debug().
				Str("event", "settings.file_changed").
				Str("op", event.Op.String()).
				Msg("settings file changed")

			if debounceTimer == nil {
				debounceTimer = time.NewTimer(watcher.debounce)
			} else {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(watcher.debounce)
			}
			debounceC = debounceTimer.C

		case <-debounceC:
			debounceC = nil
			watcher.onChange()

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			watcher.logger.Error().
				Err(err).
				Str("event", "settings.watcher_error").
				Msg("settings watcher error")
		}
	}
}
