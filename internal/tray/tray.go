package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/petems/dictator/internal/app"
	"github.com/petems/dictator/internal/audio"
	"github.com/petems/dictator/internal/logging"
)

const (
	commandTimeout = 150 * time.Second
	elapsedTick    = time.Second
)

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	// openFile opens a path with the desktop's default application.
	openFile func(path string) error

	mu        sync.Mutex
	modelItem map[string]*systray.MenuItem
	ticker    *time.Ticker
	tickDone  chan struct{}

	// Menu items
	mStartStop *systray.MenuItem
	mCancel    *systray.MenuItem
	mCopy      *systray.MenuItem
	mModels    *systray.MenuItem
	mMic       *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application *app.App, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:       application,
		version:   version,
		commit:    commit,
		log:       log,
		openFile:  browser.OpenFile,
		modelItem: make(map[string]*systray.MenuItem),
	}
}

// Run blocks on the systray event loop until Quit is clicked or ctx ends.
// It must be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	if u.app.RecordingAvailable() {
		u.updateStatus("idle")
	} else {
		u.updateStatus("error")
	}
	systray.SetTooltip("Dictator: speech to clipboard")

	u.mStartStop = systray.AddMenuItem(startStopTitle(false), "Start or stop recording")
	if !u.app.RecordingAvailable() {
		u.mStartStop.SetTitle("Recording unavailable")
		u.mStartStop.Disable()
	}
	u.mCancel = systray.AddMenuItem("Cancel Recording", "Stop recording and discard the audio")
	u.mCancel.Disable()
	u.mCopy = systray.AddMenuItem("Copy Last Transcript", "Copy the most recent transcript")
	u.mCopy.Disable()
	systray.AddSeparator()

	name, format, err := u.app.Microphone()
	u.mMic = systray.AddMenuItem(microphoneLabel(name, format, err), "Input device in use")
	u.mMic.Disable()

	u.mModels = systray.AddMenuItem("Model: "+modelLabel(u.app.Settings().DefaultModel), "Select transcription model")
	go u.buildModelMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Dictator")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			go u.toggleRecording()
		case <-u.mCancel.ClickedCh:
			u.cancelRecording()
		case <-u.mCopy.ClickedCh:
			u.copyLast()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggleRecording() {
	if !u.app.IsRecording() {
		if err := u.app.StartRecording(); err != nil {
			u.log.Error().Err(err).Msg("Start recording failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := u.app.StopRecording(ctx); err != nil {
		u.log.Error().Err(err).Msg("Stop recording failed")
	}
}

func (u *UI) cancelRecording() {
	if err := u.app.CancelRecording(); err != nil {
		u.log.Error().Err(err).Msg("Cancel recording failed")
	}
}

// tickElapsed keeps the stop item showing the recording length until done
// is closed.
func (u *UI) tickElapsed(t *time.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-t.C:
			if u.app.IsRecording() {
				u.mStartStop.SetTitle(stopTitle(u.app.RecordingDuration()))
			}
		case <-done:
			return
		}
	}
}

func (u *UI) copyLast() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.app.CopyLastTranscript(ctx); err != nil {
		u.log.Error().Err(err).Msg("Copy failed")
	}
}

func (u *UI) buildModelMenu() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	current := u.app.Settings().DefaultModel
	models, err := u.app.ListModels(ctx)
	if err != nil {
		u.log.Info().Err(err).Msg("Model list unavailable, keeping configured model")
		u.mModels.Disable()
		return
	}

	for _, m := range models {
		item := u.mModels.AddSubMenuItem(m.ID, "")
		if m.ID == current {
			item.Check()
		}
		u.mu.Lock()
		u.modelItem[m.ID] = item
		u.mu.Unlock()

		go func(id string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				u.selectModel(id)
			}
		}(m.ID, item)
	}
}

func (u *UI) selectModel(id string) {
	old := u.app.Settings().DefaultModel
	if err := u.app.SetModel(id); err != nil {
		u.log.Error().Err(err).Msg("Failed to change model")
		return
	}

	u.mu.Lock()
	for mdl, itm := range u.modelItem {
		if mdl == id {
			itm.Check()
		} else {
			itm.Uncheck()
		}
	}
	u.mu.Unlock()

	u.mModels.SetTitle("Model: " + modelLabel(id))
	u.log.Info().Str("from", old).Str("to", id).Msg("Changed transcription model")
}

func (u *UI) openLogs() {
	path := logging.LogPath()
	if err := u.openFile(path); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	fmt.Printf("Dictator %s (%s)\nSpeech to clipboard via an OpenAI-compatible API\n", u.version, u.commit)
}

func (u *UI) onExit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	systray.SetTitle(fmt.Sprintf("🎤 %s", emojiForStatus(status)))
	if u.mStartStop != nil && u.app.RecordingAvailable() {
		u.mStartStop.SetTitle(startStopTitle(status == "recording"))
	}
	if u.mCancel != nil {
		if status == "recording" {
			u.mCancel.Enable()
		} else {
			u.mCancel.Disable()
		}
	}
	u.setTicking(status == "recording")
	if status == "idle" && u.mCopy != nil && u.app.LastTranscript() != "" {
		u.mCopy.Enable()
	}
}

// setTicking starts or stops the elapsed time display.
func (u *UI) setTicking(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if on == (u.ticker != nil) || u.mStartStop == nil {
		return
	}
	if !on {
		u.ticker.Stop()
		close(u.tickDone)
		u.ticker, u.tickDone = nil, nil
		return
	}
	u.ticker = time.NewTicker(elapsedTick)
	u.tickDone = make(chan struct{})
	go u.tickElapsed(u.ticker, u.tickDone)
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "processing":
		return "🟡" // Yellow - processing transcription
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

func startStopTitle(recording bool) string {
	if recording {
		return "Stop Recording"
	}
	return "Start Recording"
}

// stopTitle shows the running length next to the stop action.
func stopTitle(elapsed time.Duration) string {
	return fmt.Sprintf("%s (%s)", startStopTitle(true), formatElapsed(elapsed))
}

// formatElapsed renders m:ss, or h:mm:ss past an hour.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func modelLabel(model string) string {
	if model == "" {
		return "server default"
	}
	return model
}

func microphoneLabel(name string, format audio.InputFormat, err error) string {
	if err != nil {
		return "Microphone: unavailable"
	}
	return fmt.Sprintf("Microphone: %s (%s)", name, format)
}
