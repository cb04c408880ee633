// ABOUTME: Audio type definitions
// ABOUTME: Defines devices, interleaved float32 buffers and stream states
package audio

import (
	"fmt"
	"math"
)

const (
	// 16-bit PCM range constants
	MaxInt16 = 32767
	MinInt16 = -32768
)

// Kind distinguishes output devices from input devices
type Kind int

const (
	Speaker Kind = iota
	Microphone
)

func (k Kind) String() string {
	switch k {
	case Speaker:
		return "speaker"
	case Microphone:
		return "microphone"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Device is a snapshot of a sound device as reported by a backend.
// It is not kept up to date: the device may disappear between
// enumeration and the moment a stream is opened on it.
type Device struct {
	ID         string
	Name       string
	Channels   int
	IsLoopback bool
	Kind       Kind
}

// String renders the device the way it is shown in listings
func (d Device) String() string {
	label := "Speaker"
	if d.Kind == Microphone {
		label = "Microphone"
		if d.IsLoopback {
			label = "Loopback"
		}
	}
	return fmt.Sprintf("<%s %s (%d channels)>", label, d.Name, d.Channels)
}

// Buffer holds interleaved float32 samples, frames x channels
type Buffer struct {
	Samples  []float32
	Channels int
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(frames, channels int) Buffer {
	return Buffer{
		Samples:  make([]float32, frames*channels),
		Channels: channels,
	}
}

// Mono wraps a one-dimensional signal as a single-channel buffer
func Mono(samples []float32) Buffer {
	return Buffer{Samples: samples, Channels: 1}
}

// FromChannels interleaves per-channel slices into a buffer.
// All channels must have the same length.
func FromChannels(channels ...[]float32) (Buffer, error) {
	if len(channels) == 0 {
		return Buffer{}, NewFormatError("no channels given")
	}
	frames := len(channels[0])
	buf := NewBuffer(frames, len(channels))
	for c, ch := range channels {
		if len(ch) != frames {
			return Buffer{}, NewFormatError(fmt.Sprintf("channel %d has %d frames, expected %d", c, len(ch), frames))
		}
		for i, s := range ch {
			buf.Samples[i*len(channels)+c] = s
		}
	}
	return buf, nil
}

// Frames returns the number of frames in the buffer
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Channel extracts one channel as a new slice
func (b Buffer) Channel(c int) []float32 {
	frames := b.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		out[i] = b.Samples[i*b.Channels+c]
	}
	return out
}

// Validate checks that the sample count is a whole number of frames
func (b Buffer) Validate() error {
	if b.Channels <= 0 {
		return NewFormatError(fmt.Sprintf("invalid channel count %d", b.Channels))
	}
	if len(b.Samples)%b.Channels != 0 {
		return NewFormatError(fmt.Sprintf("%d samples is not a multiple of %d channels", len(b.Samples), b.Channels))
	}
	return nil
}

// Clamp limits a sample to [-1, 1]. NaN becomes silence.
func Clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case s != s:
		return 0
	}
	return s
}

// SampleToInt16 converts a float32 sample to 16-bit PCM
func SampleToInt16(sample float32) int16 {
	v := math.Round(float64(Clamp(sample)) * MaxInt16)
	return int16(v)
}

// SampleFromInt16 converts a 16-bit PCM sample to float32
func SampleFromInt16(sample int16) float32 {
	if sample == MinInt16 {
		return -1
	}
	return float32(sample) / MaxInt16
}

// State describes where a stream is in its lifecycle
type State int

const (
	StateCreated State = iota
	StateNegotiating
	StateReady
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
