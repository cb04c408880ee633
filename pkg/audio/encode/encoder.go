// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for audio file writers
package encode

import "github.com/Resonate-Protocol/soundcard-go/pkg/audio"

// Encoder writes float32 buffers to an encoded destination
type Encoder interface {
	// Encode appends the buffer's frames
	Encode(buf audio.Buffer) error

	// Close finishes the file. Nothing may be encoded afterwards.
	Close() error
}
