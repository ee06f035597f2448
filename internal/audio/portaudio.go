package audio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const defaultFramesPerBuffer = 512

// standardRates are checked in ascending order to build supported ranges.
var standardRates = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000}

type portAudioDriver struct {
	framesPerBuffer int
}

// NewPortAudio initializes PortAudio and returns a driver backed by it.
func NewPortAudio(framesPerBuffer int) (Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &portAudioDriver{framesPerBuffer: framesPerBuffer}, nil
}

func (p *portAudioDriver) InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	defaultDevice, _ := portaudio.DefaultInputDevice()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				Name:    d.Name,
				Default: d == defaultDevice,
				handle:  d,
			})
		}
	}
	return result, nil
}

func (p *portAudioDriver) DefaultInputDevice() (Device, error) {
	d, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, err
	}
	if d == nil || d.MaxInputChannels == 0 {
		return Device{}, errors.New("default device has no input channels")
	}
	return Device{Name: d.Name, Default: true, handle: d}, nil
}

func (p *portAudioDriver) SupportedInputConfigs(dev Device) ([]SupportedConfig, error) {
	info, err := deviceInfo(dev)
	if err != nil {
		return nil, err
	}

	channelCounts := []int{1}
	if info.MaxInputChannels > 1 {
		channelCounts = append(channelCounts, info.MaxInputChannels)
	}

	var configs []SupportedConfig
	for _, enc := range []SampleEncoding{SampleFloat32, SampleInt16} {
		for _, ch := range channelCounts {
			ok := make([]bool, len(standardRates))
			for i, rate := range standardRates {
				params := p.params(info, ch, rate)
				ok[i] = portaudio.IsFormatSupported(params, checkCallback(enc)) == nil
			}
			configs = append(configs, rangesFromSupport(ch, enc, standardRates, ok)...)
		}
	}
	return configs, nil
}

func (p *portAudioDriver) OpenInputStream(dev Device, format InputFormat, sink Sink, onError func(error)) (Stream, error) {
	info, err := deviceInfo(dev)
	if err != nil {
		return nil, err
	}

	// The callback only touches sink and the overflow counter, never the stream.
	overflows := new(atomic.Uint64)
	var callback any
	switch format.Encoding {
	case SampleFloat32:
		callback = func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			if flags&portaudio.InputOverflow != 0 {
				overflows.Add(1)
			}
			sink.WriteFloat32(in)
		}
	case SampleInt16:
		callback = func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			if flags&portaudio.InputOverflow != 0 {
				overflows.Add(1)
			}
			sink.WriteInt16(in)
		}
	default:
		return nil, fmt.Errorf("unsupported sample encoding %s", format.Encoding)
	}

	stream, err := portaudio.OpenStream(p.params(info, format.Channels, format.SampleRate), callback)
	if err != nil {
		return nil, err
	}
	return &portAudioStream{stream: stream, overflows: overflows, onError: onError}, nil
}

func (p *portAudioDriver) Close() error {
	return portaudio.Terminate()
}

func (p *portAudioDriver) params(info *portaudio.DeviceInfo, channels, rate int) portaudio.StreamParameters {
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: p.framesPerBuffer,
	}
}

type portAudioStream struct {
	stream    *portaudio.Stream
	overflows *atomic.Uint64
	onError   func(error)
}

func (s *portAudioStream) Start() error { return s.stream.Start() }

func (s *portAudioStream) Stop() error {
	err := s.stream.Stop()
	if n := s.overflows.Swap(0); n > 0 && s.onError != nil {
		s.onError(fmt.Errorf("input overflowed in %d callbacks", n))
	}
	return err
}

func (s *portAudioStream) Close() error { return s.stream.Close() }

func deviceInfo(dev Device) (*portaudio.DeviceInfo, error) {
	info, ok := dev.handle.(*portaudio.DeviceInfo)
	if !ok || info == nil {
		return nil, fmt.Errorf("device %q is not a PortAudio device", dev.Name)
	}
	return info, nil
}

func checkCallback(enc SampleEncoding) any {
	if enc == SampleInt16 {
		return func(in []int16) {}
	}
	return func(in []float32) {}
}

// rangesFromSupport turns per-rate support results into contiguous ranges.
func rangesFromSupport(channels int, enc SampleEncoding, rates []int, ok []bool) []SupportedConfig {
	var out []SupportedConfig
	start := -1
	for i := 0; i <= len(rates); i++ {
		supported := i < len(rates) && ok[i]
		switch {
		case supported && start < 0:
			start = i
		case !supported && start >= 0:
			out = append(out, SupportedConfig{
				Channels:      channels,
				Encoding:      enc,
				MinSampleRate: rates[start],
				MaxSampleRate: rates[i-1],
			})
			start = -1
		}
	}
	return out
}
