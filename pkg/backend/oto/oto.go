// ABOUTME: Playback-only backend on top of the oto library
// ABOUTME: Adapts oto's pull-model reader to the render callback
package oto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// Name is the backend name used for selection
const Name = "oto"

const bytesPerSample = 4

// Config configures the oto backend
type Config struct {
	// Channels is what the single output device declares
	Channels int
	// BufferSize is oto's internal buffer; zero uses oto's default
	BufferSize time.Duration
	Logger     logrus.FieldLogger
}

var output = audio.Device{
	ID:   "default",
	Name: "Default Output",
	Kind: audio.Speaker,
}

// Backend exposes the system default output. oto allows a single context
// per process, so the first stream fixes rate and channel count.
type Backend struct {
	cfg    Config
	logger logrus.FieldLogger

	mu       sync.Mutex
	ctx      *oto.Context
	rate     int
	channels int
}

// New creates the backend. The oto context is created lazily by the
// first stream.
func New(cfg Config) *Backend {
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Backend{cfg: cfg, logger: logger.WithField("backend", Name)}
}

// Name implements backend.Backend
func (b *Backend) Name() string { return Name }

func (b *Backend) device() audio.Device {
	d := output
	d.Channels = b.cfg.Channels
	return d
}

// Enumerate implements backend.Backend. There are no microphones.
func (b *Backend) Enumerate(kind audio.Kind) ([]audio.Device, error) {
	if kind != audio.Speaker {
		return nil, nil
	}
	return []audio.Device{b.device()}, nil
}

// Default implements backend.Backend
func (b *Backend) Default(kind audio.Kind) (audio.Device, error) {
	if kind != audio.Speaker {
		return audio.Device{}, &audio.NotFoundError{Identifier: "default " + kind.String()}
	}
	return b.device(), nil
}

// OpenStream implements backend.Backend
func (b *Backend) OpenStream(p backend.StreamParams) (backend.Stream, error) {
	if p.Direction != audio.Speaker {
		return nil, &audio.BackendError{Op: "open stream", Message: "oto only supports playback"}
	}
	if p.Device.ID != output.ID {
		return nil, &audio.NotFoundError{Identifier: p.Device.ID}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   p.SampleRate,
			ChannelCount: p.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   b.cfg.BufferSize,
		})
		if err != nil {
			return nil, &audio.BackendError{Op: "oto context", Err: err}
		}
		<-ready
		b.ctx = ctx
		b.rate = p.SampleRate
		b.channels = p.Channels
		b.logger.WithFields(logrus.Fields{
			"rate":     p.SampleRate,
			"channels": p.Channels,
		}).Info("audio output initialized")
	} else if b.rate != p.SampleRate || b.channels != p.Channels {
		// oto cannot be reinitialized within a process
		return nil, audio.NewFormatError(fmt.Sprintf("output already runs at %dHz/%dch, cannot open %dHz/%dch",
			b.rate, b.channels, p.SampleRate, p.Channels))
	}

	s := &stream{b: b, channels: p.Channels, rate: p.SampleRate, blocksize: p.Blocksize}
	s.player = b.ctx.NewPlayer(&reader{s: s})
	return s, nil
}

// Close implements backend.Backend
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Suspend(); err != nil {
		return &audio.BackendError{Op: "oto suspend", Err: err}
	}
	return nil
}

type stream struct {
	b         *Backend
	player    *oto.Player
	channels  int
	rate      int
	blocksize int

	mu      sync.Mutex
	handler backend.Handler
	scratch []float32
}

func (s *stream) Channels() int   { return s.channels }
func (s *stream) Blocksize() int  { return s.blocksize }
func (s *stream) SampleRate() int { return s.rate }

// Latency is what oto still holds in its buffer
func (s *stream) Latency() time.Duration {
	frames := s.player.BufferedSize() / (bytesPerSample * s.channels)
	return time.Duration(frames) * time.Second / time.Duration(s.rate)
}

func (s *stream) InstallCallback(h backend.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	return nil
}

func (s *stream) Start() error {
	s.mu.Lock()
	installed := s.handler != nil
	s.mu.Unlock()
	if !installed {
		return &audio.BackendError{Op: "start stream", Message: "no callback installed"}
	}
	s.player.Play()
	return nil
}

func (s *stream) StopAndDispose() error {
	s.player.Pause()
	err := s.player.Close()

	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()

	if err != nil {
		return &audio.BackendError{Op: "close player", Err: err}
	}
	return nil
}

// reader is pulled by oto's mixing goroutine
type reader struct {
	s *stream
}

func (r *reader) Read(p []byte) (int, error) {
	s := r.s
	frameBytes := bytesPerSample * s.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	n := frames * s.channels

	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	buf := s.scratch[:n]

	if s.handler == nil {
		for i := range buf {
			buf[i] = 0
		}
	} else {
		s.handler.Render(buf, frames)
	}

	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(v))
	}
	return frames * frameBytes, nil
}
