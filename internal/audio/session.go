package audio

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/petems/dictator/internal/config"
	"github.com/rs/zerolog"
)

// preallocSeconds sizes the sample buffer so typical dictations never grow
// it from the callback.
const preallocSeconds = 30

// EncodeFunc writes mono samples to path.
type EncodeFunc func(path string, samples []float32, sampleRate, channels int) error

// recordingState is shared between the driver callback and the controller.
type recordingState struct {
	mu        sync.Mutex
	samples   []float32
	recording bool
}

func (s *recordingState) WriteFloat32(block []float32) {
	s.mu.Lock()
	if s.recording {
		s.samples = append(s.samples, block...)
	}
	s.mu.Unlock()
}

func (s *recordingState) WriteInt16(block []int16) {
	s.mu.Lock()
	if s.recording {
		n := len(s.samples)
		s.samples = growSamples(s.samples, len(block))
		for i, v := range block {
			s.samples[n+i] = float32(v) / math.MaxInt16
		}
	}
	s.mu.Unlock()
}

func growSamples(buf []float32, n int) []float32 {
	return slices.Grow(buf, n)[:len(buf)+n]
}

// Session owns the lifecycle of one recording at a time on a negotiated
// device. The stream slot is only touched by Start, Stop and Close; the
// driver callback only sees state.
type Session struct {
	drv    Driver
	device Device
	format InputFormat
	encode EncodeFunc
	log    zerolog.Logger

	state recordingState

	streamMu sync.Mutex
	stream   Stream
}

// Option configures a Session.
type Option func(*Session)

// WithEncoder replaces the WAV encoder used by Stop.
func WithEncoder(fn EncodeFunc) Option {
	return func(s *Session) { s.encode = fn }
}

// New negotiates a device and format once and returns a session bound to
// them for its lifetime.
func New(drv Driver, cfg config.AudioConfig, log zerolog.Logger, opts ...Option) (*Session, error) {
	dev, format, err := Select(drv, NegotiateOptions{
		DeviceName: cfg.DeviceName,
		SampleRate: cfg.SampleRate,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return NewSession(drv, dev, format, log, opts...), nil
}

// NewSession binds a session to an already negotiated device and format.
func NewSession(drv Driver, dev Device, format InputFormat, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		drv:    drv,
		device: dev,
		format: format,
		encode: WriteWAV,
		log:    log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Format returns the negotiated input format.
func (s *Session) Format() InputFormat { return s.format }

// Device returns the negotiated input device.
func (s *Session) Device() Device { return s.device }

// DeviceName returns the name of the negotiated input device.
func (s *Session) DeviceName() string { return s.device.Name }

// IsRecording reports whether a stream is active.
func (s *Session) IsRecording() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream != nil
}

// Start opens and starts a stream on the negotiated device.
func (s *Session) Start() error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if s.stream != nil {
		return ErrAlreadyRecording
	}

	s.state.mu.Lock()
	if s.state.recording {
		s.state.mu.Unlock()
		s.log.Warn().Msg("Recording flag set without an active stream")
		return ErrAlreadyRecording
	}
	if cap(s.state.samples) == 0 {
		s.state.samples = make([]float32, 0, s.format.SampleRate*preallocSeconds)
	}
	s.state.samples = s.state.samples[:0]
	s.state.recording = true
	s.state.mu.Unlock()

	stream, err := s.drv.OpenInputStream(s.device, s.format, &s.state, s.onStreamError)
	if err != nil {
		s.rollback()
		return fmt.Errorf("%w: %w", ErrBuildStream, err)
	}

	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("Failed to close stream after start failure")
		}
		s.rollback()
		return fmt.Errorf("%w: %w", ErrPlayStream, err)
	}

	s.stream = stream
	s.log.Info().Msg("Recording started")
	return nil
}

func (s *Session) rollback() {
	s.state.mu.Lock()
	s.state.recording = false
	s.state.samples = s.state.samples[:0]
	s.state.mu.Unlock()
}

// Stop tears down the active stream and writes what was captured to path.
func (s *Session) Stop(path string) error {
	samples, err := s.teardown()
	if err != nil {
		return err
	}

	if len(samples) == 0 {
		s.log.Warn().Msg("Audio buffer is empty after recording")
	}
	s.log.Info().Int("samples", len(samples)).Msg("Stopping recording")

	if err := s.encode(path, samples, s.format.SampleRate, targetChannels); err != nil {
		return err
	}

	s.log.Info().Str("path", path).Msg("Wrote WAV file")
	return nil
}

// Cancel tears down the active stream and discards what was captured.
func (s *Session) Cancel() error {
	samples, err := s.teardown()
	if err != nil {
		return err
	}
	s.log.Info().Int("samples", len(samples)).Msg("Recording discarded")
	return nil
}

// teardown stops the stream and drains the buffer. The returned slice is
// owned by the caller.
func (s *Session) teardown() ([]float32, error) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	stream := s.stream
	if stream == nil {
		return nil, ErrNotRecording
	}
	s.stream = nil

	stopErr := stream.Stop()
	if err := stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close stream")
	}

	s.state.mu.Lock()
	s.state.recording = false
	samples := s.state.samples
	s.state.samples = nil
	s.state.mu.Unlock()

	if stopErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPauseStream, stopErr)
	}
	return samples, nil
}

func (s *Session) onStreamError(err error) {
	s.log.Error().Err(err).Msg("An error occurred on the audio stream")
}

// ListDevices returns the input devices known to the driver.
func (s *Session) ListDevices() ([]AudioDevice, error) {
	devices, err := s.drv.InputDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	for _, d := range devices {
		result = append(result, AudioDevice{
			ID:      d.Name,
			Name:    d.Name,
			Default: d.Default,
		})
	}
	return result, nil
}

// Close stops any active stream without writing a file and releases the driver.
func (s *Session) Close() error {
	if _, err := s.teardown(); err != nil && !errors.Is(err, ErrNotRecording) {
		s.log.Warn().Err(err).Msg("Failed to stop recording during close")
	}
	return s.drv.Close()
}
