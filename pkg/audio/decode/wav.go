// ABOUTME: WAV file decoder
// ABOUTME: Reads integer PCM through go-audio/wav and scales it to float32
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder reads PCM WAV files
type WAVDecoder struct {
	dec      *wav.Decoder
	rate     int
	channels int
	bits     int
	scale    float32
	buf      *goaudio.IntBuffer
}

// NewWAV parses the header of r
func NewWAV(r io.ReadSeeker) (*WAVDecoder, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find PCM data: %w", err)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported WAV format tag: %d", dec.WavAudioFormat)
	}

	bits := int(dec.BitDepth)
	switch bits {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bits)
	}

	channels := int(dec.NumChans)
	return &WAVDecoder{
		dec:      dec,
		rate:     int(dec.SampleRate),
		channels: channels,
		bits:     bits,
		scale:    float32(int64(1)<<(bits-1) - 1),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		},
	}, nil
}

func (d *WAVDecoder) SampleRate() int { return d.rate }

func (d *WAVDecoder) Channels() int { return d.channels }

// Decode reads up to frames frames
func (d *WAVDecoder) Decode(frames int) (audio.Buffer, error) {
	if frames <= 0 {
		return audio.Buffer{}, audio.NewFormatError(fmt.Sprintf("frame count must be positive, not %d", frames))
	}
	if cap(d.buf.Data) < frames*d.channels {
		d.buf.Data = make([]int, frames*d.channels)
	}
	d.buf.Data = d.buf.Data[:frames*d.channels]

	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to read PCM data: %w", err)
	}
	n -= n % d.channels
	if n == 0 {
		return audio.Buffer{}, io.EOF
	}

	out := audio.Buffer{Samples: make([]float32, n), Channels: d.channels}
	for i, v := range d.buf.Data[:n] {
		if d.bits == 16 {
			out.Samples[i] = audio.SampleFromInt16(int16(v))
			continue
		}
		out.Samples[i] = audio.Clamp(float32(v) / d.scale)
	}
	return out, nil
}

// ReadAll decodes the rest of the source into one buffer
func ReadAll(d Decoder) (audio.Buffer, error) {
	all := audio.Buffer{Channels: d.Channels()}
	for {
		buf, err := d.Decode(4096)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all.Samples = append(all.Samples, buf.Samples...)
	}
}
