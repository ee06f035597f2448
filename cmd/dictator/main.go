package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/dictator/internal/app"
	"github.com/petems/dictator/internal/audio"
	"github.com/petems/dictator/internal/config"
	"github.com/petems/dictator/internal/inject"
	"github.com/petems/dictator/internal/logging"
	"github.com/petems/dictator/internal/notify"
	"github.com/petems/dictator/internal/permissions"
	"github.com/petems/dictator/internal/recordings"
	"github.com/petems/dictator/internal/tray"
	"github.com/petems/dictator/internal/whisper"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

const cleanupInterval = 24 * time.Hour

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "dictator",
		Short:        "Record speech and transcribe it with an OpenAI-compatible API",
		Version:      Version + " (" + Commit + ")",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is the platform config dir)")

	root.AddCommand(
		newDevicesCmd(opts),
		newRecordCmd(opts),
		newTranscribeCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *options) load() (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFrom(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, logging.New(), err
	}
	return cfg, logging.NewWithLevel(cfg.LogLevel), nil
}

// newRecorder opens the audio driver and negotiates the capture format.
// A nil recorder with an error means recording is unavailable.
func newRecorder(cfg *config.Config, log zerolog.Logger) (audio.Recorder, error) {
	if err := permissions.EnsureMicrophone(); err != nil {
		return nil, err
	}

	drv, err := audio.NewPortAudio(cfg.Audio.FramesPerBuffer)
	if err != nil {
		return nil, err
	}

	session, err := audio.New(drv, cfg.Audio, log)
	if err != nil {
		if cerr := drv.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to release audio driver")
		}
		return nil, err
	}
	return session, nil
}

// newApp wires the production collaborators. onAutoStop may be nil.
func newApp(cfg *config.Config, log zerolog.Logger, paths app.PathSource, rec audio.Recorder, recErr error, onAutoStop func(string, error)) *app.App {
	return app.New(app.Config{
		Recorder:    rec,
		RecorderErr: recErr,
		Transcriber: whisper.New(whisper.SettingsFrom(cfg), log),
		Paths:       paths,
		Injector:    inject.NewClipboard(),
		Notifier:    notify.NewDesktop(log),
		Config:      cfg,
		Logger:      log,
		OnAutoStop:  onAutoStop,
	})
}

func runTray(opts *options) error {
	cfg, log, err := opts.load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec, recErr := newRecorder(cfg, log)
	if recErr != nil {
		log.Error().Err(recErr).Msg("Audio initialization failed, recording disabled")
	}

	store := recordings.NewStore(recordings.DefaultRoot(), log)
	go store.RunCleanup(ctx, cleanupInterval)

	application := newApp(cfg, log, store, rec, recErr, nil)
	trayUI := tray.New(application, Version, Commit, log)
	application.SetStatusUpdater(trayUI)

	log.Info().Str("version", Version).Str("api", cfg.APIURL).Msg("Dictator starting...")

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx)
}
