// ABOUTME: Stream handles and options
// ABOUTME: Channel counts, channel maps, blocksize and share mode
package soundcard

import (
	"github.com/Resonate-Protocol/soundcard-go/internal/bridge"
	"github.com/Resonate-Protocol/soundcard-go/internal/channelmap"
)

// Silence is the channel map index of a channel that never reaches hardware
const Silence = channelmap.Silence

// Player is an open playback stream. Play queues data and returns; Wait
// blocks until the queue is played out.
type Player struct {
	*bridge.Player
}

// Recorder is an open capture stream. Record returns exactly the requested
// number of frames; RecordAvailable returns whatever arrived next.
type Recorder struct {
	*bridge.Recorder
}

// StreamOption adjusts how a stream is opened
type StreamOption func(*streamConfig)

type streamConfig struct {
	channels    int
	channelsSet bool
	channelMap  []int
	blocksize   int
	exclusive   bool
	name        string
}

// WithChannels uses the first n device channels
func WithChannels(n int) StreamOption {
	return func(c *streamConfig) {
		c.channels = n
		c.channelsSet = true
		c.channelMap = nil
	}
}

// WithChannelMap selects device channels explicitly, in logical order.
// Silence marks a channel that is not connected.
func WithChannelMap(channels ...int) StreamOption {
	return func(c *streamConfig) {
		c.channelMap = append([]int{}, channels...)
		c.channelsSet = false
	}
}

// WithBlocksize sets the chunk size hint in frames
func WithBlocksize(frames int) StreamOption {
	return func(c *streamConfig) {
		c.blocksize = frames
	}
}

// WithExclusive asks for exclusive access to the device where supported
func WithExclusive() StreamOption {
	return func(c *streamConfig) {
		c.exclusive = true
	}
}

// WithStreamName labels the stream in sound server mixers
func WithStreamName(name string) StreamOption {
	return func(c *streamConfig) {
		c.name = name
	}
}
