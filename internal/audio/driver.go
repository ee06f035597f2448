package audio

// Device is an opaque reference to an input device. Only the driver that
// produced it can interpret handle.
type Device struct {
	Name    string
	Default bool

	handle any
}

// Sink receives blocks of captured samples on the driver's callback thread.
// Implementations must not block for long, perform I/O or log.
type Sink interface {
	WriteFloat32(block []float32)
	WriteInt16(block []int16)
}

// Stream is an opened hardware input path.
type Stream interface {
	// Start begins delivering blocks to the sink.
	Start() error
	// Stop halts delivery. No sink call is in flight once it returns.
	Stop() error
	// Close releases the stream.
	Close() error
}

// Driver is the boundary to the platform audio layer.
type Driver interface {
	InputDevices() ([]Device, error)
	DefaultInputDevice() (Device, error)
	SupportedInputConfigs(dev Device) ([]SupportedConfig, error)
	OpenInputStream(dev Device, format InputFormat, sink Sink, onError func(error)) (Stream, error)
	Close() error
}
