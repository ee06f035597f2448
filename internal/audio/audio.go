package audio

import "fmt"

// Recorder is the recording surface consumed by the command layer.
type Recorder interface {
	Start() error
	Stop(path string) error
	Cancel() error
	IsRecording() bool
	Format() InputFormat
	DeviceName() string
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

// SampleEncoding is the raw sample type delivered by the driver.
type SampleEncoding int

const (
	SampleFloat32 SampleEncoding = iota
	SampleInt16
)

func (e SampleEncoding) String() string {
	switch e {
	case SampleFloat32:
		return "f32"
	case SampleInt16:
		return "i16"
	default:
		return fmt.Sprintf("SampleEncoding(%d)", int(e))
	}
}

// InputFormat is the negotiated capture format. It never changes after
// negotiation.
type InputFormat struct {
	SampleRate int
	Channels   int
	Encoding   SampleEncoding
}

func (f InputFormat) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %s", f.SampleRate, f.Channels, f.Encoding)
}

// SupportedConfig is a range of sample rates a device accepts for one
// channel count and encoding.
type SupportedConfig struct {
	Channels      int
	Encoding      SampleEncoding
	MinSampleRate int
	MaxSampleRate int
}

// Contains reports whether rate lies inside the supported range.
func (c SupportedConfig) Contains(rate int) bool {
	return c.MinSampleRate <= rate && rate <= c.MaxSampleRate
}

// WithSampleRate fixes the config at rate.
func (c SupportedConfig) WithSampleRate(rate int) InputFormat {
	return InputFormat{SampleRate: rate, Channels: c.Channels, Encoding: c.Encoding}
}

// WithMaxSampleRate fixes the config at its highest supported rate.
func (c SupportedConfig) WithMaxSampleRate() InputFormat {
	return c.WithSampleRate(c.MaxSampleRate)
}
