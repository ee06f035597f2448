package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/dictator/internal/audio"
	"github.com/petems/dictator/internal/config"
	"github.com/petems/dictator/internal/inject"
	"github.com/petems/dictator/internal/notify"
	"github.com/petems/dictator/internal/whisper"
)

// ErrRecordingUnavailable is returned by recording commands when the audio
// subsystem failed to initialize.
var ErrRecordingUnavailable = errors.New("recording is unavailable")

// CommandError is the error every App command returns. Message is what the
// user sees.
type CommandError struct {
	Message string
	Err     error
}

func (e *CommandError) Error() string { return e.Message }

func (e *CommandError) Unwrap() error { return e.Err }

func commandError(err error) error {
	if err == nil {
		return nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return err
	}
	return &CommandError{Message: err.Error(), Err: err}
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetProcessing()
	SetError()
}

// PathSource hands out paths for new recordings.
type PathSource interface {
	NewPath() (string, error)
}

type Config struct {
	// Recorder is nil when audio initialization failed. RecorderErr then
	// says why.
	Recorder    audio.Recorder
	RecorderErr error

	Transcriber   whisper.Transcriber
	Paths         PathSource
	Injector      inject.Injector
	Notifier      notify.Notifier
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil

	// OnAutoStop receives the outcome of a recording stopped by the
	// length limit. Optional.
	OnAutoStop func(text string, err error)

	// Now defaults to time.Now.
	Now func() time.Time
}

type App struct {
	rec    audio.Recorder
	recErr error
	stt    whisper.Transcriber
	paths  PathSource
	inj    inject.Injector
	notes  notify.Notifier
	log    zerolog.Logger
	status StatusUpdater
	onAuto func(text string, err error)
	now    func() time.Time

	mu       sync.Mutex
	cfg      *config.Config
	gen      uint64
	autoStop *time.Timer
	started  time.Time
	last     string
}

func New(cfg Config) *App {
	a := &App{
		rec:    cfg.Recorder,
		recErr: cfg.RecorderErr,
		stt:    cfg.Transcriber,
		paths:  cfg.Paths,
		inj:    cfg.Injector,
		notes:  cfg.Notifier,
		log:    cfg.Logger,
		status: cfg.StatusUpdater,
		cfg:    cfg.Config,
		onAuto: cfg.OnAutoStop,
		now:    cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.inj == nil {
		a.inj = inject.Nop{}
	}
	if a.notes == nil {
		a.notes = notify.Nop{}
	}
	if a.rec == nil && a.recErr == nil {
		a.recErr = errors.New("no recorder configured")
	}
	return a
}

// SetStatusUpdater attaches the status sink after construction, for UIs
// that need the App before they exist. Call it before the first command.
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// RecordingAvailable reports whether the audio subsystem initialized.
func (a *App) RecordingAvailable() bool {
	return a.rec != nil
}

// UnavailableReason returns why recording is unavailable, or nil.
func (a *App) UnavailableReason() error {
	if a.rec != nil {
		return nil
	}
	return a.recErr
}

func (a *App) unavailable() error {
	return &CommandError{
		Message: ErrRecordingUnavailable.Error() + ": " + a.recErr.Error(),
		Err:     errors.Join(ErrRecordingUnavailable, a.recErr),
	}
}

// StartRecording begins capturing from the negotiated microphone.
func (a *App) StartRecording() error {
	if a.rec == nil {
		return a.unavailable()
	}

	a.mu.Lock()
	if err := a.rec.Start(); err != nil {
		a.mu.Unlock()
		a.log.Error().Err(err).Msg("Failed to start recording")
		if !errors.Is(err, audio.ErrAlreadyRecording) {
			a.setStatus(StatusUpdater.SetError)
		}
		return commandError(err)
	}

	a.gen++
	a.started = a.now()
	if limit := a.cfg.MaxRecording(); limit > 0 {
		gen := a.gen
		a.autoStop = time.AfterFunc(limit, func() { a.onAutoStop(gen) })
	}
	notes := a.cfg.Notifications
	a.mu.Unlock()

	a.setStatus(StatusUpdater.SetRecording)
	if notes {
		a.notes.Notify("Recording started")
	}
	return nil
}

// StopRecording stops capturing, writes the WAV file and transcribes it.
// The transcript is returned and, if enabled, copied to the clipboard.
func (a *App) StopRecording(ctx context.Context) (string, error) {
	if a.rec == nil {
		return "", a.unavailable()
	}

	a.mu.Lock()
	path, next, err := a.stopCaptureLocked()
	a.mu.Unlock()
	a.setStatus(next)
	if err != nil {
		return "", commandError(err)
	}

	return a.transcribe(ctx, path)
}

// CancelRecording stops capturing and discards the audio. Nothing is
// written or transcribed.
func (a *App) CancelRecording() error {
	if a.rec == nil {
		return a.unavailable()
	}

	a.mu.Lock()
	a.disarmLocked()
	a.gen++
	err := a.rec.Cancel()
	a.mu.Unlock()

	if err != nil {
		if !errors.Is(err, audio.ErrNotRecording) {
			a.log.Error().Err(err).Msg("Failed to cancel recording")
			a.setStatus(StatusUpdater.SetError)
		}
		return commandError(err)
	}

	a.log.Info().Msg("Recording cancelled")
	a.setStatus(StatusUpdater.SetIdle)
	return nil
}

// RecordingDuration returns how long the current recording has run, or
// zero when idle.
func (a *App) RecordingDuration() time.Duration {
	if !a.IsRecording() {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now().Sub(a.started)
}

// ToggleRecording starts a recording when idle and stops it otherwise.
func (a *App) ToggleRecording(ctx context.Context) (string, error) {
	if a.IsRecording() {
		return a.StopRecording(ctx)
	}
	return "", a.StartRecording()
}

func (a *App) onAutoStop(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.rec.IsRecording() {
		a.mu.Unlock()
		return
	}
	a.log.Info().Dur("limit", a.cfg.MaxRecording()).Msg("Recording limit reached, stopping")
	path, next, err := a.stopCaptureLocked()
	a.mu.Unlock()
	a.setStatus(next)

	text := ""
	if err == nil {
		text, err = a.transcribe(context.Background(), path)
		if err != nil {
			a.log.Error().Err(err).Msg("Auto-stopped recording was not transcribed")
		}
	} else {
		err = commandError(err)
	}
	if a.onAuto != nil {
		a.onAuto(text, err)
	}
}

// stopCaptureLocked stops the recorder and returns the written file and the
// status to report once mu is released.
func (a *App) stopCaptureLocked() (string, func(StatusUpdater), error) {
	if !a.rec.IsRecording() {
		return "", nil, audio.ErrNotRecording
	}

	path, err := a.paths.NewPath()
	if err != nil {
		a.log.Error().Err(err).Msg("No path for recording")
		return "", nil, err
	}

	a.disarmLocked()

	if err := a.rec.Stop(path); err != nil {
		a.log.Error().Err(err).Msg("Failed to stop recording")
		return "", StatusUpdater.SetError, err
	}
	return path, StatusUpdater.SetProcessing, nil
}

func (a *App) disarmLocked() {
	if a.autoStop != nil {
		a.autoStop.Stop()
		a.autoStop = nil
	}
}

// transcribe runs without holding mu so a slow API never blocks new
// recordings.
func (a *App) transcribe(ctx context.Context, path string) (string, error) {
	text, err := a.stt.Transcribe(ctx, path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("Transcription failed")
		a.setStatus(StatusUpdater.SetError)
		if a.notificationsOn() {
			a.notes.Notify("Transcription failed")
		}
		return "", commandError(err)
	}

	a.mu.Lock()
	a.last = text
	copyText := a.cfg.CopyToClipboard
	a.mu.Unlock()

	if text == "" {
		a.log.Info().Msg("No speech recognized")
	} else if copyText {
		if err := a.inj.Copy(ctx, text); err != nil {
			a.log.Warn().Err(err).Msg("Failed to copy transcript")
		}
	}

	a.setStatus(StatusUpdater.SetIdle)
	if a.notificationsOn() && text != "" {
		a.notes.Notify(text)
	}
	return text, nil
}

func (a *App) notificationsOn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Notifications
}

// setStatus must not be called with mu held; updaters may call back into
// the App.
func (a *App) setStatus(fn func(StatusUpdater)) {
	if fn != nil && a.status != nil {
		fn(a.status)
	}
}

// IsRecording reports whether a recording is in progress.
func (a *App) IsRecording() bool {
	if a.rec == nil {
		return false
	}
	return a.rec.IsRecording()
}

// LastTranscript returns the most recent transcript.
func (a *App) LastTranscript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// CopyLastTranscript puts the most recent transcript on the clipboard.
func (a *App) CopyLastTranscript(ctx context.Context) error {
	text := a.LastTranscript()
	if text == "" {
		return &CommandError{Message: "no transcript yet"}
	}
	return commandError(a.inj.Copy(ctx, text))
}

// Settings returns a copy of the current settings.
func (a *App) Settings() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.cfg
}

// SaveSettings persists cfg and applies the API settings to the
// transcription client. Audio settings take effect on next launch.
func (a *App) SaveSettings(cfg config.Config) error {
	a.mu.Lock()
	next := cfg.WithPath(a.cfg.Path())
	if err := next.Save(); err != nil {
		a.mu.Unlock()
		a.log.Error().Err(err).Msg("Failed to save settings")
		return commandError(err)
	}
	a.cfg = next
	a.mu.Unlock()

	a.stt.UpdateConfig(whisper.SettingsFrom(next))
	a.log.Info().Str("apiUrl", next.APIURL).Str("model", next.DefaultModel).Msg("Settings saved")
	return nil
}

// SetModel switches the model sent with transcription requests.
func (a *App) SetModel(model string) error {
	cfg := a.Settings()
	cfg.DefaultModel = model
	return a.SaveSettings(cfg)
}

// SupportsModelsEndpoint reports whether the API can list models.
func (a *App) SupportsModelsEndpoint(ctx context.Context) bool {
	return a.stt.SupportsModelsEndpoint(ctx)
}

// ListModels returns the models offered by the API.
func (a *App) ListModels(ctx context.Context) ([]whisper.Model, error) {
	models, err := a.stt.ListModels(ctx)
	if err != nil {
		return nil, commandError(err)
	}
	return models, nil
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	if a.rec == nil {
		return nil, a.unavailable()
	}
	devices, err := a.rec.ListDevices()
	return devices, commandError(err)
}

// Microphone describes the device and format in use.
func (a *App) Microphone() (string, audio.InputFormat, error) {
	if a.rec == nil {
		return "", audio.InputFormat{}, a.unavailable()
	}
	return a.rec.DeviceName(), a.rec.Format(), nil
}

// Shutdown discards any recording in progress and releases the recorder.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.disarmLocked()
	a.gen++

	if a.rec == nil {
		return nil
	}
	if a.rec.IsRecording() {
		a.log.Warn().Msg("Discarding recording in progress")
	}
	return commandError(a.rec.Close())
}
