package audio

import (
	"errors"
	"sync"

	"github.com/petems/dictator/internal/config"
)

// fakeDriver is an in-memory Driver. Streams it opens deliver blocks only
// between Start and Stop, and Stop waits for an in-flight delivery the way a
// real driver does.
type fakeDriver struct {
	devices    []Device
	defaultErr error
	configs    []SupportedConfig
	configsErr error
	openErr    error
	startErr   error
	stopErr    error

	mu      sync.Mutex
	opened  []*fakeStream
	closed  bool
	errored []error
}

func (d *fakeDriver) InputDevices() ([]Device, error) {
	return d.devices, nil
}

func (d *fakeDriver) DefaultInputDevice() (Device, error) {
	if d.defaultErr != nil {
		return Device{}, d.defaultErr
	}
	for _, dev := range d.devices {
		if dev.Default {
			return dev, nil
		}
	}
	return Device{}, errors.New("no default device")
}

func (d *fakeDriver) SupportedInputConfigs(Device) ([]SupportedConfig, error) {
	return d.configs, d.configsErr
}

func (d *fakeDriver) OpenInputStream(dev Device, format InputFormat, sink Sink, onError func(error)) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{format: format, sink: sink, startErr: d.startErr, stopErr: d.stopErr}
	d.mu.Lock()
	d.opened = append(d.opened, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

type fakeStream struct {
	format   InputFormat
	sink     Sink
	startErr error
	stopErr  error

	mu      sync.Mutex
	running bool
	closed  bool
	stops   int
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.running = false
	s.stops++
	s.mu.Unlock()
	return s.stopErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.running = false
	s.mu.Unlock()
	return nil
}

// deliverFloat32 simulates one driver callback. It reports whether the
// stream was running.
func (s *fakeStream) deliverFloat32(block []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.sink.WriteFloat32(block)
	return true
}

func (s *fakeStream) deliverInt16(block []int16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.sink.WriteInt16(block)
	return true
}

func monoDevice() []Device {
	return []Device{
		{Name: "USB Mic"},
		{Name: "Built-in Microphone", Default: true},
	}
}

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{SampleRate: DefaultSampleRate}
}
