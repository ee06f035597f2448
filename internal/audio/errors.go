package audio

import "errors"

var (
	// ErrNoDevice indicates there is no default input device.
	ErrNoDevice = errors.New("no default input device found")

	// ErrNoFormat indicates the device offers no mono float32/int16 config.
	ErrNoFormat = errors.New("no supported input config found")

	// ErrDeviceQuery indicates the driver could not enumerate device configs.
	ErrDeviceQuery = errors.New("failed to get supported input configs")

	ErrAlreadyRecording = errors.New("recording is already in progress")
	ErrNotRecording     = errors.New("not currently recording")

	ErrBuildStream = errors.New("failed to build input stream")
	ErrPlayStream  = errors.New("failed to play stream")
	ErrPauseStream = errors.New("failed to pause stream")

	// ErrEncodeIO indicates the WAV file could not be created.
	ErrEncodeIO = errors.New("wav io error")
	// ErrEncodeCodec indicates the WAV container could not be written or finalized.
	ErrEncodeCodec = errors.New("wav error")
)
