// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for audio file readers
package decode

import "github.com/Resonate-Protocol/soundcard-go/pkg/audio"

// Decoder reads an encoded source as float32 buffers
type Decoder interface {
	// Decode returns up to frames frames, and io.EOF once the source is
	// exhausted
	Decode(frames int) (audio.Buffer, error)

	// SampleRate of the decoded audio
	SampleRate() int

	// Channels of the decoded audio
	Channels() int
}
