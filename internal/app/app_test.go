package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/dictator/internal/audio"
	"github.com/petems/dictator/internal/config"
	"github.com/petems/dictator/internal/whisper"
)

// Mock implementations for testing
type mockRecorder struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	stopErr   error
	stopped   []string
	cancelled int
	closed    bool
}

func (m *mockRecorder) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording {
		return audio.ErrAlreadyRecording
	}
	if m.startErr != nil {
		return m.startErr
	}
	m.recording = true
	return nil
}

func (m *mockRecorder) Stop(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return audio.ErrNotRecording
	}
	m.recording = false
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stopped = append(m.stopped, path)
	return nil
}

func (m *mockRecorder) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return audio.ErrNotRecording
	}
	m.recording = false
	m.cancelled++
	return nil
}

func (m *mockRecorder) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *mockRecorder) Format() audio.InputFormat {
	return audio.InputFormat{SampleRate: 16000, Channels: 1, Encoding: audio.SampleFloat32}
}

func (m *mockRecorder) DeviceName() string { return "Built-in Microphone" }

func (m *mockRecorder) ListDevices() ([]audio.AudioDevice, error) {
	return []audio.AudioDevice{{ID: "default", Name: "Default", Default: true}}, nil
}

func (m *mockRecorder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.recording = false
	return nil
}

func (m *mockRecorder) stoppedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopped...)
}

type mockTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	calls    []string
	models   []whisper.Model
	settings whisper.Settings
}

func (m *mockTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, path)
	return m.text, m.err
}

func (m *mockTranscriber) SupportsModelsEndpoint(ctx context.Context) bool {
	return m.models != nil
}

func (m *mockTranscriber) ListModels(ctx context.Context) ([]whisper.Model, error) {
	if m.models == nil {
		return nil, whisper.ErrModelListingNotSupported
	}
	return m.models, nil
}

func (m *mockTranscriber) UpdateConfig(s whisper.Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

func (m *mockTranscriber) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockPaths struct {
	dir string
	n   int
	err error
}

func (m *mockPaths) NewPath() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.n++
	return filepath.Join(m.dir, "rec-"+string(rune('0'+m.n))+".wav"), nil
}

type mockInjector struct {
	mu     sync.Mutex
	copied []string
}

func (m *mockInjector) Copy(ctx context.Context, text string) error {
	m.mu.Lock()
	m.copied = append(m.copied, text)
	m.mu.Unlock()
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) Notify(msg string) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
}

type mockStatus struct {
	mu     sync.Mutex
	states []string
}

func (m *mockStatus) record(s string) {
	m.mu.Lock()
	m.states = append(m.states, s)
	m.mu.Unlock()
}

func (m *mockStatus) SetIdle()       { m.record("idle") }
func (m *mockStatus) SetRecording()  { m.record("recording") }
func (m *mockStatus) SetProcessing() { m.record("processing") }
func (m *mockStatus) SetError()      { m.record("error") }

func (m *mockStatus) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return ""
	}
	return m.states[len(m.states)-1]
}

type fixture struct {
	app    *App
	rec    *mockRecorder
	stt    *mockTranscriber
	inj    *mockInjector
	notes  *mockNotifier
	status *mockStatus
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default().WithPath(filepath.Join(t.TempDir(), "config.json"))
	f := &fixture{
		rec:    &mockRecorder{},
		stt:    &mockTranscriber{text: "hello world"},
		inj:    &mockInjector{},
		notes:  &mockNotifier{},
		status: &mockStatus{},
		cfg:    cfg,
	}
	f.app = New(Config{
		Recorder:      f.rec,
		Transcriber:   f.stt,
		Paths:         &mockPaths{dir: t.TempDir()},
		Injector:      f.inj,
		Notifier:      f.notes,
		Config:        cfg,
		Logger:        zerolog.Nop(),
		StatusUpdater: f.status,
	})
	return f
}

func TestStartStopTranscribes(t *testing.T) {
	f := newFixture(t)

	if f.app.IsRecording() {
		t.Fatal("App should not be recording initially")
	}
	if err := f.app.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !f.app.IsRecording() {
		t.Fatal("App should be recording after start")
	}
	if f.status.last() != "recording" {
		t.Errorf("expected recording status, got %q", f.status.last())
	}

	text, err := f.app.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected transcript, got %q", text)
	}
	if f.app.LastTranscript() != "hello world" {
		t.Errorf("expected last transcript to be stored, got %q", f.app.LastTranscript())
	}

	stopped := f.rec.stoppedPaths()
	if len(stopped) != 1 || f.stt.calls[0] != stopped[0] {
		t.Errorf("expected the written file to be transcribed, stopped %v, transcribed %v", stopped, f.stt.calls)
	}
	if len(f.inj.copied) != 1 || f.inj.copied[0] != "hello world" {
		t.Errorf("expected transcript on clipboard, got %v", f.inj.copied)
	}
	if f.status.last() != "idle" {
		t.Errorf("expected idle status, got %q", f.status.last())
	}
}

func TestClipboardDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.CopyToClipboard = false

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.inj.copied) != 0 {
		t.Errorf("expected nothing copied, got %v", f.inj.copied)
	}
}

func TestStartTwiceIsCommandError(t *testing.T) {
	f := newFixture(t)

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	err := f.app.StartRecording()

	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %T %v", err, err)
	}
	if !errors.Is(err, audio.ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording, got %v", err)
	}
	if ce.Message == "" {
		t.Error("command errors carry a message")
	}
	if f.status.last() != "recording" {
		t.Errorf("a second start should not change status, got %q", f.status.last())
	}
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.StopRecording(context.Background())
	if !errors.Is(err, audio.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if f.stt.callCount() != 0 {
		t.Error("nothing should be transcribed")
	}
}

func TestStopFailureSetsError(t *testing.T) {
	f := newFixture(t)
	f.rec.stopErr = audio.ErrPauseStream

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	_, err := f.app.StopRecording(context.Background())
	if !errors.Is(err, audio.ErrPauseStream) {
		t.Fatalf("expected ErrPauseStream, got %v", err)
	}
	if f.status.last() != "error" {
		t.Errorf("expected error status, got %q", f.status.last())
	}
	if f.stt.callCount() != 0 {
		t.Error("nothing should be transcribed")
	}
}

func TestTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.stt.err = &whisper.APIError{Status: 401, Message: "invalid api key"}

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	_, err := f.app.StopRecording(context.Background())

	var apiErr *whisper.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected APIError through CommandError, got %v", err)
	}
	if f.status.last() != "error" {
		t.Errorf("expected error status, got %q", f.status.last())
	}
	if f.app.IsRecording() {
		t.Error("a failed transcription leaves the recorder idle")
	}
}

func TestRecordingUnavailable(t *testing.T) {
	initErr := audio.ErrNoDevice
	a := New(Config{
		RecorderErr: initErr,
		Transcriber: &mockTranscriber{},
		Config:      config.Default(),
		Logger:      zerolog.Nop(),
	})

	if a.RecordingAvailable() {
		t.Fatal("recording should be unavailable")
	}
	if !errors.Is(a.UnavailableReason(), audio.ErrNoDevice) {
		t.Errorf("expected init error as reason, got %v", a.UnavailableReason())
	}
	if err := a.StartRecording(); !errors.Is(err, ErrRecordingUnavailable) || !errors.Is(err, audio.ErrNoDevice) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if _, err := a.StopRecording(context.Background()); !errors.Is(err, ErrRecordingUnavailable) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if _, err := a.ListDevices(); !errors.Is(err, ErrRecordingUnavailable) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if a.IsRecording() {
		t.Error("unavailable app is never recording")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestToggleRecording(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.ToggleRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !f.app.IsRecording() {
		t.Fatal("first toggle should start recording")
	}
	text, err := f.app.ToggleRecording(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.app.IsRecording() || text != "hello world" {
		t.Fatalf("second toggle should stop and transcribe, got %q", text)
	}
}

func TestAutoStop(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxRecordingSeconds = 1

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for f.stt.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recording was not auto-stopped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if f.app.IsRecording() {
		t.Error("recorder should be idle after auto-stop")
	}
	if f.app.LastTranscript() != "hello world" {
		t.Errorf("auto-stop should transcribe, got %q", f.app.LastTranscript())
	}
}

func TestManualStopDisarmsAutoStop(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxRecordingSeconds = 1

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if _, err := f.app.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}

	// Past the first recording's limit, short of the second's.
	time.Sleep(700 * time.Millisecond)
	if !f.app.IsRecording() {
		t.Fatal("the first recording's timer must not stop the second recording")
	}
	if f.stt.callCount() != 1 {
		t.Errorf("expected one transcription, got %d", f.stt.callCount())
	}
}

func TestSaveSettings(t *testing.T) {
	f := newFixture(t)

	cfg := f.app.Settings()
	cfg.APIURL = "https://api.example.com"
	cfg.DefaultModel = "whisper-1"
	if err := f.app.SaveSettings(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	if f.stt.settings.APIURL != "https://api.example.com" || f.stt.settings.DefaultModel != "whisper-1" {
		t.Errorf("transcriber not updated: %+v", f.stt.settings)
	}
	loaded, err := config.LoadFrom(f.cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.APIURL != "https://api.example.com" {
		t.Errorf("settings not persisted, got %q", loaded.APIURL)
	}

	if err := f.app.SetModel("large-v3"); err != nil {
		t.Fatal(err)
	}
	if f.app.Settings().DefaultModel != "large-v3" || f.stt.settings.DefaultModel != "large-v3" {
		t.Error("SetModel should update settings and transcriber")
	}
}

func TestListModels(t *testing.T) {
	f := newFixture(t)

	if f.app.SupportsModelsEndpoint(context.Background()) {
		t.Fatal("expected no models endpoint")
	}
	if _, err := f.app.ListModels(context.Background()); !errors.Is(err, whisper.ErrModelListingNotSupported) {
		t.Fatalf("expected ErrModelListingNotSupported, got %v", err)
	}

	f.stt.models = []whisper.Model{{ID: "whisper-1"}}
	models, err := f.app.ListModels(context.Background())
	if err != nil || len(models) != 1 {
		t.Fatalf("expected one model, got %v %v", models, err)
	}
}

func TestCopyLastTranscript(t *testing.T) {
	f := newFixture(t)
	f.cfg.CopyToClipboard = false

	if err := f.app.CopyLastTranscript(context.Background()); err == nil {
		t.Fatal("expected an error before any transcript")
	}

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.app.CopyLastTranscript(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.inj.copied) != 1 {
		t.Errorf("expected one copy, got %v", f.inj.copied)
	}
}

func TestShutdownClosesRecorder(t *testing.T) {
	f := newFixture(t)

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !f.rec.closed {
		t.Error("recorder should be closed")
	}
	if len(f.rec.stoppedPaths()) != 0 {
		t.Error("shutdown should not write a recording")
	}
}

func TestMicrophone(t *testing.T) {
	f := newFixture(t)

	name, format, err := f.app.Microphone()
	if err != nil {
		t.Fatal(err)
	}
	if name != "Built-in Microphone" || format.SampleRate != 16000 {
		t.Errorf("unexpected microphone %q %v", name, format)
	}
}

func TestAutoStopReportsTranscript(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxRecordingSeconds = 1

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	f.app.onAuto = func(text string, err error) { done <- result{text, err} }

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil || r.text != "hello world" {
			t.Fatalf("expected the auto-stop transcript, got %q %v", r.text, r.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("auto-stop hook was not called")
	}

	// A caller stopping after the limit fired finds nothing to stop.
	if _, err := f.app.StopRecording(context.Background()); !errors.Is(err, audio.ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
}

func TestAutoStopReportsTranscriptionError(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxRecordingSeconds = 1
	f.stt.err = &whisper.APIError{Status: 500, Message: "boom"}

	done := make(chan error, 1)
	f.app.onAuto = func(text string, err error) { done <- err }

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		var apiErr *whisper.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("auto-stop hook was not called")
	}
}

func TestCancelRecording(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxRecordingSeconds = 1

	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if err := f.app.CancelRecording(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.app.IsRecording() {
		t.Fatal("cancel should stop capture")
	}
	if f.rec.cancelled != 1 || len(f.rec.stoppedPaths()) != 0 {
		t.Errorf("expected a discard without a file, cancelled %d, stopped %v", f.rec.cancelled, f.rec.stoppedPaths())
	}
	if f.status.last() != "idle" {
		t.Errorf("expected idle status, got %q", f.status.last())
	}

	// The disarmed limit must not fire later.
	time.Sleep(1200 * time.Millisecond)
	if f.stt.callCount() != 0 {
		t.Errorf("cancelled audio must not be transcribed, got %d calls", f.stt.callCount())
	}

	if err := f.app.CancelRecording(); !errors.Is(err, audio.ErrNotRecording) {
		t.Errorf("expected ErrNotRecording when idle, got %v", err)
	}
	if f.status.last() != "idle" {
		t.Errorf("cancelling while idle should not change status, got %q", f.status.last())
	}
}

func TestCancelRecordingUnavailable(t *testing.T) {
	a := New(Config{RecorderErr: audio.ErrNoDevice, Config: config.Default(), Logger: zerolog.Nop()})
	if err := a.CancelRecording(); !errors.Is(err, ErrRecordingUnavailable) {
		t.Errorf("expected unavailable error, got %v", err)
	}
}

func TestRecordingDuration(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.app.now = func() time.Time { return now }

	if d := f.app.RecordingDuration(); d != 0 {
		t.Fatalf("expected zero while idle, got %v", d)
	}
	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(42 * time.Second)
	if d := f.app.RecordingDuration(); d != 42*time.Second {
		t.Errorf("expected 42s, got %v", d)
	}
	if err := f.app.CancelRecording(); err != nil {
		t.Fatal(err)
	}
	if d := f.app.RecordingDuration(); d != 0 {
		t.Errorf("expected zero after cancel, got %v", d)
	}
}

func TestNotificationsFollowSettings(t *testing.T) {
	f := newFixture(t)

	cfg := f.app.Settings()
	cfg.Notifications = false
	if err := f.app.SaveSettings(cfg); err != nil {
		t.Fatal(err)
	}
	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.notes.messages) != 0 {
		t.Fatalf("expected no notifications while disabled, got %v", f.notes.messages)
	}

	cfg.Notifications = true
	if err := f.app.SaveSettings(cfg); err != nil {
		t.Fatal(err)
	}
	if err := f.app.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.app.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.notes.messages) != 2 || f.notes.messages[1] != "hello world" {
		t.Errorf("expected start and transcript notifications, got %v", f.notes.messages)
	}
}

// reentrantStatus reads App state from inside every callback.
type reentrantStatus struct {
	app   *App
	calls int
}

func (r *reentrantStatus) touch() {
	r.calls++
	_ = r.app.LastTranscript()
	_ = r.app.Settings()
	_ = r.app.RecordingDuration()
}

func (r *reentrantStatus) SetIdle()       { r.touch() }
func (r *reentrantStatus) SetRecording()  { r.touch() }
func (r *reentrantStatus) SetProcessing() { r.touch() }
func (r *reentrantStatus) SetError()      { r.touch() }

func TestStatusCallbacksMayCallBack(t *testing.T) {
	f := newFixture(t)
	status := &reentrantStatus{app: f.app}
	f.app.SetStatusUpdater(status)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.app.StartRecording()
		_, _ = f.app.StopRecording(context.Background())
		_ = f.app.StartRecording()
		_ = f.app.CancelRecording()

		f.rec.stopErr = audio.ErrPauseStream
		_ = f.app.StartRecording()
		_, _ = f.app.StopRecording(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("status callback deadlocked against the App")
	}
	// recording, processing, idle, recording, idle, recording, error
	if status.calls != 7 {
		t.Errorf("expected 7 status callbacks, got %d", status.calls)
	}
}
