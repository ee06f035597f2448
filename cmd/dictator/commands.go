package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/dictator/internal/app"
	"github.com/petems/dictator/internal/audio"
	"github.com/petems/dictator/internal/recordings"
	"github.com/petems/dictator/internal/whisper"
)

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List input devices and the negotiated capture format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			rec, err := newRecorder(cfg, log)
			if err != nil {
				return err
			}
			defer rec.Close()

			devices, err := rec.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				marker := " "
				if d.Name == rec.DeviceName() {
					marker = "*"
				}
				def := ""
				if d.Default {
					def = " (default)"
				}
				fmt.Fprintf(out, "%s %s%s\n", marker, d.Name, def)
			}
			fmt.Fprintf(out, "\nRecording from %s at %s\n", rec.DeviceName(), rec.Format())
			return nil
		},
	}
}

// fixedPath hands out the same path every time.
type fixedPath string

func (p fixedPath) NewPath() (string, error) {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0755); err != nil {
		return "", err
	}
	return string(p), nil
}

func newRecordCmd(opts *options) *cobra.Command {
	var (
		duration time.Duration
		out      string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone, then transcribe",
		Long:  "Records until the duration elapses or Ctrl-C is pressed, writes a WAV file and prints the transcript.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			rec, err := newRecorder(cfg, log)
			if err != nil {
				return err
			}

			var paths app.PathSource = recordings.NewStore(recordings.DefaultRoot(), log)
			if out != "" {
				paths = fixedPath(out)
			}
			auto := make(chan autoStopResult, 1)
			application := newApp(cfg, log, paths, rec, nil, func(text string, err error) {
				auto <- autoStopResult{text: text, err: err}
			})
			defer application.Shutdown(context.Background())

			if err := application.StartRecording(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Recording... press Ctrl-C to stop")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, duration)
				defer stop()
			}

			text, err := awaitRecording(ctx, application, auto, 150*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 waits for Ctrl-C)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the WAV file here instead of the recordings cache")
	return cmd
}

type autoStopResult struct {
	text string
	err  error
}

type recordingStopper interface {
	StopRecording(ctx context.Context) (string, error)
}

// awaitRecording returns the transcript of a recording ended either by ctx
// or by the length limit, whichever comes first.
func awaitRecording(ctx context.Context, rec recordingStopper, auto <-chan autoStopResult, timeout time.Duration) (string, error) {
	select {
	case r := <-auto:
		return r.text, r.err
	case <-ctx.Done():
	}

	tctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	text, err := rec.StopRecording(tctx)
	if !errors.Is(err, audio.ErrNotRecording) {
		return text, err
	}

	// The limit fired just before the stop.
	select {
	case r := <-auto:
		return r.text, r.err
	case <-tctx.Done():
		return "", tctx.Err()
	}
}

func newTranscribeCmd(opts *options) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe an existing audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			settings := whisper.SettingsFrom(cfg)
			if model != "" {
				settings.DefaultModel = model
			}
			text, err := whisper.New(settings, log).Transcribe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to request (default from config)")
	return cmd
}

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the transcription API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			models, err := whisper.New(whisper.SettingsFrom(cfg), log).ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				marker := " "
				if m.ID == cfg.DefaultModel {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m.ID)
			}
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the config file path and effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.APIKey != "" {
				shown.APIKey = "********"
			}
			data, err := json.MarshalIndent(&shown, "", "  ")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n%s\n", cfg.Path(), data)
			return nil
		},
	}
}
