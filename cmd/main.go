package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"focustimer/internal/control"
	"focustimer/internal/core/clock"
	"focustimer/internal/core/guard"
	"focustimer/internal/core/publisher"
	"focustimer/internal/core/timekeeper"
	applog "focustimer/internal/log"
	"focustimer/internal/platform"
	"focustimer/internal/storage"
	"focustimer/internal/ui/preferences"
	"focustimer/internal/ui/tray"
)

const appName = "focustimer"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	options := &rootOptions{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Focus session timer living in the system tray",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTray(cmd.Context(), options)
		},
	}
	root.PersistentFlags().StringVar(&options.configPath, "config", "", "settings file (default: user config dir)")
	root.PersistentFlags().StringVar(&options.logLevel, "log-level", "", "log level (overrides settings and LOG_LEVEL)")

	root.AddCommand(newRemoteCmds()...)
	root.AddCommand(newHistoryCmd(options))
	root.AddCommand(newAutostartCmd())
	return root
}

func openSettings(options *rootOptions) (*storage.SettingsStore, preferences.Settings, error) {
	path := options.configPath
	if path == "" {
		configDir, err := platform.ConfigDir(appName)
		if err != nil {
			return nil, preferences.Settings{}, err
		}
		path = filepath.Join(configDir, "settings.yaml")
	}
	store := storage.NewSettingsStore(path)
	settings, err := store.Load()
	if err != nil {
		return nil, preferences.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return store, settings, nil
}

func databasePath(store *storage.SettingsStore, settings preferences.Settings) string {
	if settings.DatabasePath != "" {
		return settings.DatabasePath
	}
	return filepath.Join(filepath.Dir(store.Path()), "sessions.db")
}

func openMirror(ctx context.Context, store *storage.SettingsStore, settings preferences.Settings, logger zerolog.Logger) (publisher.Mirror, func(), error) {
	switch settings.MirrorBackend {
	case preferences.MirrorRedis:
		mirror, err := storage.NewRedisMirror(ctx, settings.RedisAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		return mirror, func() { _ = mirror.Close() }, nil
	case preferences.MirrorFile:
		path := settings.MirrorPath
		if path == "" {
			path = filepath.Join(filepath.Dir(store.Path()), "state.json")
		}
		mirror, err := storage.NewFileMirror(path)
		if err != nil {
			return nil, nil, err
		}
		return mirror, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

// reloadLogLevel applies the log level from the settings file after it changed
// on disk.
func reloadLogLevel(store *storage.SettingsStore, logger zerolog.Logger) {
	settings, err := store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("reload settings")
		return
	}
	if err := applog.SetLevel(settings.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("apply log level")
	}
}

func runTray(ctx context.Context, options *rootOptions) error {
	store, settings, err := openSettings(options)
	if err != nil {
		return err
	}
	level := options.logLevel
	levelPinned := level != "" || os.Getenv("LOG_LEVEL") != ""
	if !levelPinned {
		level = settings.LogLevel
	}
	applog.Configure(applog.Config{Level: level, Service: appName})
	logger := applog.WithComponent("main")

	instance, err := platform.AcquireSingleInstance(appName)
	if err != nil {
		if errors.Is(err, platform.ErrAlreadyRunning) {
			logger.Info().Err(err).Msg("another instance is running")
			return nil
		}
		return err
	}
	defer func() { _ = instance.Release() }()

	fyneApp := app.NewWithID("io.focustimer.app")
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		return errors.New("system tray unsupported on this platform")
	}

	sessions, err := storage.OpenSessionStore(databasePath(store, settings))
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	mirror, closeMirror, err := openMirror(ctx, store, settings, applog.WithComponent("mirror"))
	if err != nil {
		logger.Warn().Err(err).Str("backend", settings.MirrorBackend).Msg("shared mirror disabled")
		mirror, closeMirror = nil, func() {}
	}
	defer closeMirror()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keeper *timekeeper.TimeKeeper
	var prefsWindow *preferences.Window
	trayManager := tray.New(desktopApp, tray.Callbacks{
		OnStart:  func() { keeper.Start(timekeeper.StartRequest{}) },
		OnPause:  func() { keeper.Pause() },
		OnResume: func() { keeper.Resume() },
		OnStop: func() {
			go stopAndLog(runCtx, keeper, logger)
		},
		OnCancel: func() { keeper.Cancel() },
		OnPreferences: func() {
			// The engine clears the one-shot custom start on disk.
			if current, err := store.Load(); err == nil {
				prefsWindow.UpdateSettings(current)
			}
			prefsWindow.Show()
		},
		OnQuit: func() {
			go func() {
				stopAndLog(runCtx, keeper, logger)
				fyne.Do(fyneApp.Quit)
			}()
		},
	})

	sessionPublisher := publisher.New(trayManager, mirror, settings.PublisherConfig(), applog.WithComponent("publisher"))
	continuation := guard.New(platform.NewGraceHost(settings.GracePeriod), nil, applog.WithComponent("guard"))

	keeper = timekeeper.New(settings.EngineConfig(), timekeeper.Deps{
		Clock:       clock.Real(),
		Persistence: sessions,
		StartTimes:  store,
		Publisher:   sessionPublisher,
		Guard:       continuation,
		Logger:      applog.WithComponent("timekeeper"),
	})

	prefsWindow = preferences.New(fyneApp, settings, func(updated preferences.Settings) {
		if err := store.Save(updated); err != nil {
			logger.Error().Err(err).Msg("save settings")
		}
	})

	fyneApp.Lifecycle().SetOnExitedForeground(func() { keeper.SetBackgrounded(true) })
	fyneApp.Lifecycle().SetOnEnteredForeground(func() { keeper.SetBackgrounded(false) })

	group, groupCtx := errgroup.WithContext(runCtx)
	events := keeper.Subscribe(16)
	group.Go(func() error { return keeper.Run(groupCtx) })
	group.Go(func() error { return sessionPublisher.Run(groupCtx) })
	group.Go(func() error {
		server := control.NewServer(keeper, control.DefaultRateLimit(), applog.WithComponent("control"))
		return server.Serve(groupCtx, instance.Listener())
	})
	group.Go(func() error {
		watcher := storage.NewSettingsWatcher(store.Path(), 0, func() {
			keeper.Retime()
			if !levelPinned {
				reloadLogLevel(store, logger)
			}
		}, applog.WithComponent("settings"))
		return watcher.Run(groupCtx)
	})
	group.Go(func() error {
		monitor := platform.NewPresenceMonitor(platform.NewIdleProvider(), settings.IdleThreshold, 5*time.Second,
			keeper.SetBackgrounded, applog.WithComponent("presence"))
		return monitor.Run(groupCtx)
	})
	group.Go(func() error {
		for event := range events {
			logger.Debug().
				Str("event", string(event.Type)).
				Str("phase", string(event.Phase)).
				Str("session_id", event.Snapshot.SessionID).
				Dur("elapsed", event.Snapshot.Elapsed).
				Msg("engine event")
		}
		return nil
	})
	appDone := make(chan struct{})
	group.Go(func() error {
		select {
		case <-appDone:
		case <-groupCtx.Done():
			// A failed component takes the whole app down.
			fyneApp.Quit()
		}
		return nil
	})

	logger.Info().Str("control", instance.Address()).Msg("focustimer started")
	fyneApp.Run()
	close(appDone)

	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("focustimer stopped")
	return nil
}

func stopAndLog(ctx context.Context, keeper *timekeeper.TimeKeeper, logger zerolog.Logger) {
	result, err := keeper.Stop(ctx, "")
	if err != nil {
		logger.Error().Err(err).Str("session_id", result.Session.ID).Msg("session finished but not saved")
		return
	}
	if result.Stopped {
		logger.Info().
			Str("session_id", result.Session.ID).
			Dur("duration", result.Session.Duration).
			Msg("session saved")
	}
}
