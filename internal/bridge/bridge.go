// ABOUTME: Blocking play/record streams over callback-driven backends
// ABOUTME: Shared stream core: negotiation, state machine, error hand-off and teardown
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/channelmap"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBlocksize is used when neither the caller nor the backend picks one
const DefaultBlocksize = 512

// Config describes the stream an application asks for
type Config struct {
	Device     audio.Device
	SampleRate int
	// ChannelMap lists the physical channel of every logical channel.
	// When nil, Channels logical channels map onto themselves.
	ChannelMap []int
	// Channels is the logical channel count for an identity map.
	// Zero means the device's channel count.
	Channels  int
	Blocksize int
	Exclusive bool
	AppName   string
	Name      string

	Logger  logrus.FieldLogger
	Metrics Metrics
}

// Metrics receives stream statistics
type Metrics interface {
	StreamOpened(direction string)
	StreamClosed(direction string)
	FramesPlayed(frames int)
	FramesRecorded(frames int)
	Underrun()
	QueueDepth(direction string, chunks int)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) StreamOpened(string)    {}
func (NopMetrics) StreamClosed(string)    {}
func (NopMetrics) FramesPlayed(int)       {}
func (NopMetrics) FramesRecorded(int)     {}
func (NopMetrics) Underrun()              {}
func (NopMetrics) QueueDepth(string, int) {}

func directionLabel(k audio.Kind) string {
	if k == audio.Microphone {
		return "record"
	}
	return "playback"
}

// stream holds what players and recorders share. The queue, state and
// stored error are guarded by mu; the callback only ever holds mu for a
// push or pop.
type stream struct {
	id        string
	direction audio.Kind
	native    backend.Stream
	cmap      *channelmap.Map
	mode      channelmap.UnmappedMode
	rate      int
	blocksize int
	logger    logrus.FieldLogger
	metrics   Metrics

	mu    sync.Mutex
	cond  *sync.Cond
	queue [][]float32
	state audio.State
	err   error
}

func newStream(cfg Config, direction audio.Kind) (*stream, error) {
	if cfg.SampleRate <= 0 {
		return nil, audio.NewFormatError(fmt.Sprintf("sample rate must be positive, not %d", cfg.SampleRate))
	}
	if cfg.Blocksize < 0 {
		return nil, audio.NewFormatError(fmt.Sprintf("blocksize must not be negative, not %d", cfg.Blocksize))
	}

	var cmap *channelmap.Map
	var err error
	switch {
	case cfg.ChannelMap != nil && direction == audio.Speaker:
		cmap, err = channelmap.NewPlayback(cfg.ChannelMap, cfg.Device.Channels)
	case cfg.ChannelMap != nil:
		cmap, err = channelmap.New(cfg.ChannelMap, cfg.Device.Channels)
	case cfg.Channels > 0:
		cmap, err = channelmap.Identity(cfg.Channels)
	default:
		cmap, err = channelmap.Identity(cfg.Device.Channels)
	}
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	id := uuid.New().String()
	s := &stream{
		id:        id,
		direction: direction,
		cmap:      cmap,
		rate:      cfg.SampleRate,
		blocksize: cfg.Blocksize,
		metrics:   metrics,
		state:     audio.StateCreated,
		logger: logger.WithFields(logrus.Fields{
			"stream":    id[:8],
			"direction": directionLabel(direction),
			"device":    cfg.Device.Name,
		}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// open negotiates the native stream and starts it with h as the callback
func (s *stream) open(b backend.Backend, cfg Config, h backend.Handler) error {
	s.setState(audio.StateNegotiating)

	native, err := b.OpenStream(backend.StreamParams{
		Device:     cfg.Device,
		Direction:  s.direction,
		SampleRate: cfg.SampleRate,
		Channels:   s.cmap.Physical(),
		Blocksize:  cfg.Blocksize,
		Exclusive:  cfg.Exclusive,
		AppName:    cfg.AppName,
		StreamName: cfg.Name,
	})
	if err != nil {
		s.setState(audio.StateClosed)
		return fmt.Errorf("failed to open %s stream on %s: %w", directionLabel(s.direction), cfg.Device.Name, err)
	}
	if native.Channels() != s.cmap.Physical() {
		s.dispose(native)
		s.setState(audio.StateClosed)
		return &audio.BackendError{
			Op:      "stream negotiation",
			Message: fmt.Sprintf("negotiated %d channels, requested %d", native.Channels(), s.cmap.Physical()),
		}
	}

	s.native = native
	if s.blocksize == 0 {
		s.blocksize = native.Blocksize()
	}
	if s.blocksize <= 0 {
		s.blocksize = DefaultBlocksize
	}
	if q, ok := native.(backend.ChannelQuirks); ok && q.UnmappedMean() {
		s.mode = channelmap.UnmappedMean
	}
	s.setState(audio.StateReady)

	if err := native.InstallCallback(h); err != nil {
		s.dispose(native)
		s.setState(audio.StateClosed)
		return fmt.Errorf("failed to install stream callback: %w", err)
	}
	if err := native.Start(); err != nil {
		s.dispose(native)
		s.setState(audio.StateClosed)
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.setState(audio.StateRunning)

	s.metrics.StreamOpened(directionLabel(s.direction))
	s.logger.WithFields(logrus.Fields{
		"rate":        native.SampleRate(),
		"channels":    s.cmap.String(),
		"blocksize":   s.blocksize,
		"unmapped":    s.mode == channelmap.UnmappedMean,
		"requestRate": cfg.SampleRate,
	}).Debug("stream running")
	return nil
}

func (s *stream) setState(state audio.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State reports the lifecycle position
func (s *stream) State() audio.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channels is the logical channel count
func (s *stream) Channels() int { return s.cmap.Logical() }

// SampleRate is the rate the application works at
func (s *stream) SampleRate() int { return s.rate }

// Blocksize is the chunk size in frames
func (s *stream) Blocksize() int { return s.blocksize }

// Latency returns the backend reported latency, if the backend knows it
func (s *stream) Latency() (time.Duration, bool) {
	if r, ok := s.native.(backend.LatencyReporter); ok {
		return r.Latency(), true
	}
	return 0, false
}

// Fail implements backend.Handler. The error is kept until the next
// application call.
func (s *stream) Fail(err error) {
	if err == nil {
		return
	}
	var be *audio.BackendError
	if !errors.As(err, &be) {
		err = &audio.BackendError{Op: "stream callback", Err: err}
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Render is the default for streams that do not play
func (s *stream) Render(out []float32, frames int) {
	for i := range out {
		out[i] = 0
	}
}

// Capture is the default for streams that do not record
func (s *stream) Capture(in []float32, frames int) {}

// checkLocked returns the error an application call must fail with
func (s *stream) checkLocked(op string) error {
	if err := s.takeErrLocked(); err != nil {
		return err
	}
	if s.state != audio.StateRunning {
		return &audio.StateError{Op: op, State: s.state}
	}
	return nil
}

func (s *stream) takeErrLocked() error {
	err := s.err
	s.err = nil
	return err
}

// close tears the stream down. When drain is set, queued chunks are
// played out first. The stored callback error, if any, is returned;
// teardown failures are only logged. A close racing another one returns
// once the stream is Closed.
func (s *stream) close(drain bool) error {
	s.mu.Lock()
	if s.state == audio.StateDraining {
		for s.state != audio.StateClosed {
			s.cond.Wait()
		}
	}
	if s.state == audio.StateClosed {
		s.mu.Unlock()
		return nil
	}
	running := s.state == audio.StateRunning
	s.state = audio.StateDraining
	if drain && running {
		for len(s.queue) > 0 && s.err == nil {
			s.cond.Wait()
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.native != nil {
		s.dispose(s.native)
	}

	s.mu.Lock()
	s.state = audio.StateClosed
	s.queue = nil
	err := s.takeErrLocked()
	s.cond.Broadcast()
	s.mu.Unlock()

	if running {
		s.metrics.StreamClosed(directionLabel(s.direction))
	}
	if err != nil {
		s.logger.WithError(err).Warn("stream closed with pending callback error")
	}
	s.logger.Debug("stream closed")
	return err
}

func (s *stream) dispose(native backend.Stream) {
	if err := native.StopAndDispose(); err != nil {
		s.logger.WithError(err).Warn("failed to dispose stream")
	}
}
