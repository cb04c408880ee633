// ABOUTME: WAV file encoder
// ABOUTME: Converts float32 samples to integer PCM through go-audio/wav
package encode

import (
	"fmt"
	"io"
	"math"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag
const wavFormatPCM = 1

// WAVEncoder writes PCM WAV files
type WAVEncoder struct {
	enc      *wav.Encoder
	format   *goaudio.Format
	channels int
	bitDepth int
	scale    float64
	closed   bool
}

// NewWAV creates a WAV encoder on w. The header is finalised by Close.
func NewWAV(w io.WriteSeeker, sampleRate, channels, bitDepth int) (*WAVEncoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", bitDepth)
	}

	return &WAVEncoder{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, wavFormatPCM),
		format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		channels: channels,
		bitDepth: bitDepth,
		scale:    float64(int(1)<<(bitDepth-1) - 1),
	}, nil
}

// Encode converts and writes one buffer
func (e *WAVEncoder) Encode(buf audio.Buffer) error {
	if e.closed {
		return fmt.Errorf("encoder is closed")
	}
	if err := buf.Validate(); err != nil {
		return err
	}
	if buf.Channels != e.channels {
		return audio.NewFormatError(fmt.Sprintf("buffer has %d channels, file has %d", buf.Channels, e.channels))
	}

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		if e.bitDepth == 16 {
			data[i] = int(audio.SampleToInt16(s))
			continue
		}
		data[i] = int(math.Round(float64(audio.Clamp(s)) * e.scale))
	}
	err := e.enc.Write(&goaudio.IntBuffer{
		Format:         e.format,
		Data:           data,
		SourceBitDepth: e.bitDepth,
	})
	if err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// Close writes the final header sizes
func (e *WAVEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV file: %w", err)
	}
	return nil
}
