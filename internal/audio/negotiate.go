package audio

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	// DefaultSampleRate is the rate transcription backends expect.
	DefaultSampleRate = 16000
	targetChannels    = 1
)

// NegotiateOptions steers device and format selection.
type NegotiateOptions struct {
	// DeviceName selects a device by name. Empty means the default input device.
	DeviceName string
	// SampleRate is the preferred rate. Zero means DefaultSampleRate.
	SampleRate int
	Logger     zerolog.Logger
}

// Select picks an input device and a mono format for it. The target rate is
// used when the device supports it, otherwise the highest rate of the first
// mono config.
func Select(drv Driver, opts NegotiateOptions) (Device, InputFormat, error) {
	target := opts.SampleRate
	if target <= 0 {
		target = DefaultSampleRate
	}

	dev, err := selectDevice(drv, opts.DeviceName, opts.Logger)
	if err != nil {
		return Device{}, InputFormat{}, err
	}
	opts.Logger.Info().Str("device", dev.Name).Msg("Using input device")

	configs, err := drv.SupportedInputConfigs(dev)
	if err != nil {
		return Device{}, InputFormat{}, fmt.Errorf("%w: %w", ErrDeviceQuery, err)
	}

	format, ok := selectFormat(configs, target)
	if !ok {
		return Device{}, InputFormat{}, fmt.Errorf("%w on %q", ErrNoFormat, dev.Name)
	}

	opts.Logger.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Stringer("encoding", format.Encoding).
		Msg("Selected input config")

	return dev, format, nil
}

func selectDevice(drv Driver, name string, log zerolog.Logger) (Device, error) {
	if name != "" {
		devices, err := drv.InputDevices()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to enumerate input devices, using default")
		}
		for _, d := range devices {
			if d.Name == name {
				return d, nil
			}
		}
		log.Warn().Str("device", name).Msg("Configured device not found, using default")
	}

	dev, err := drv.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	return dev, nil
}

func selectFormat(configs []SupportedConfig, target int) (InputFormat, bool) {
	for _, c := range configs {
		if usable(c) && c.Contains(target) {
			return c.WithSampleRate(target), true
		}
	}
	for _, c := range configs {
		if usable(c) {
			return c.WithMaxSampleRate(), true
		}
	}
	return InputFormat{}, false
}

func usable(c SupportedConfig) bool {
	if c.Channels != targetChannels {
		return false
	}
	return c.Encoding == SampleFloat32 || c.Encoding == SampleInt16
}
