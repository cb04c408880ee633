// ABOUTME: Contract between the streaming bridge and native audio backends
// ABOUTME: Backends enumerate devices and open callback-driven streams
package backend

import (
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

// Backend is one native audio system
type Backend interface {
	// Name identifies the backend in logs and on the command line
	Name() string

	// Enumerate lists the devices of one kind. Loopback devices are
	// reported as microphones with IsLoopback set.
	Enumerate(kind audio.Kind) ([]audio.Device, error)

	// Default returns the device the system would pick
	Default(kind audio.Kind) (audio.Device, error)

	// OpenStream negotiates a stream. It returns once the backend has
	// confirmed the format; the callback is installed separately.
	OpenStream(p StreamParams) (Stream, error)

	// Close releases the backend. Streams must be disposed first.
	Close() error
}

// StreamParams is what the bridge asks a backend for
type StreamParams struct {
	Device     audio.Device
	Direction  audio.Kind // Speaker plays, Microphone records
	SampleRate int
	Channels   int // physical channels after channel mapping
	Blocksize  int // hint in frames, 0 lets the backend decide
	Exclusive  bool
	AppName    string
	StreamName string
}

// Stream is a negotiated native stream
type Stream interface {
	Channels() int
	// Blocksize is the negotiated callback size hint; actual callbacks
	// may deliver any number of frames.
	Blocksize() int
	// SampleRate is the negotiated rate, which for capture may differ
	// from the one requested
	SampleRate() int

	// InstallCallback attaches the handler. It must be called before Start.
	InstallCallback(h Handler) error
	Start() error
	// StopAndDispose stops the stream and returns once the backend no
	// longer references the handler
	StopAndDispose() error
}

// Handler receives callbacks on the backend's audio goroutine.
// Implementations must not block.
type Handler interface {
	// Render fills out with frames*channels interleaved samples
	Render(out []float32, frames int)
	// Capture delivers frames*channels interleaved samples. The slice is
	// only valid for the duration of the call.
	Capture(in []float32, frames int)
	// Fail reports an asynchronous backend error
	Fail(err error)
}

// LatencyReporter is implemented by streams that know their output or
// input latency
type LatencyReporter interface {
	Latency() time.Duration
}

// ChannelQuirks is implemented by streams whose backend fills unmapped
// physical channels with the mean of the mapped ones instead of silence
type ChannelQuirks interface {
	UnmappedMean() bool
}
