package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

type wavFile interface {
	io.WriteSeeker
	io.Closer
}

// WriteWAV writes normalized samples as 16-bit PCM. Out-of-range samples are
// clamped. A partially written file is left in place on error.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeIO, err)
	}
	return encodeWAV(f, samples, sampleRate, channels)
}

// encodeWAV writes the container to f and always closes it.
func encodeWAV(f wavFile, samples []float32, sampleRate, channels int) error {
	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(PCM16(s))
	}

	// Write is called even for an empty buffer so the header and data chunk exist.
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("%w: %w", ErrEncodeCodec, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrEncodeCodec, err)
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrEncodeCodec, err)
	}
	return nil
}

// PCM16 converts a normalized sample to a signed 16-bit value.
func PCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := math.Max(-1, math.Min(1, float64(s)))
	return int16(math.Round(v * math.MaxInt16))
}
