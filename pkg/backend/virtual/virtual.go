// ABOUTME: In-process audio backend driven by a mainloop goroutine
// ABOUTME: Speakers with loopback monitors, a tone microphone and varying callback sizes
package virtual

import (
	"fmt"
	"math"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/mainloop"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Name is the backend name used for selection
const Name = "virtual"

// Config describes the simulated hardware
type Config struct {
	// Speakers is the number of output devices, each with a monitor
	Speakers int
	// SpeakerChannels is the channel count every speaker declares
	SpeakerChannels int
	// NativeRate forces the rate capture streams negotiate. Zero keeps
	// the requested rate.
	NativeRate int
	// BlockSizes are the callback sizes in frames, used in rotation.
	// Empty means the stream's blocksize hint.
	BlockSizes []int
	// Tick is the loop cadence; every running stream gets one callback per tick
	Tick time.Duration
	// ToneFrequency is the sine the tone microphone produces
	ToneFrequency float64
	// UnmappedMean makes streams report the mean-fill channel quirk
	UnmappedMean bool
	// CreateDelay is how many loop iterations stream creation takes
	CreateDelay int
	// OpenTimeout bounds how long OpenStream waits for the loop
	OpenTimeout time.Duration

	Logger logrus.FieldLogger
}

// DefaultConfig returns a two-channel single speaker running faster than real time
func DefaultConfig() Config {
	return Config{
		Speakers:        1,
		SpeakerChannels: 2,
		Tick:            2 * time.Millisecond,
		ToneFrequency:   440,
		CreateDelay:     1,
		OpenTimeout:     5 * time.Second,
	}
}

type speaker struct {
	device  audio.Device
	monitor audio.Device
}

// Backend simulates a sound server. All mutable state is guarded by the
// mainloop lock; callbacks run on the loop goroutine.
type Backend struct {
	cfg    Config
	loop   *mainloop.Loop
	logger logrus.FieldLogger

	speakers []speaker
	tone     audio.Device
	streams  []*stream
	faults   map[string]error
	closed   bool
}

var namespace = uuid.MustParse("6f1c3a52-0d7e-4c1b-9a4e-5b0f2d8c7e11")

func deviceID(name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// New creates the backend and starts its loop
func New(cfg Config) *Backend {
	def := DefaultConfig()
	if cfg.Speakers <= 0 {
		cfg.Speakers = def.Speakers
	}
	if cfg.SpeakerChannels <= 0 {
		cfg.SpeakerChannels = def.SpeakerChannels
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.ToneFrequency <= 0 {
		cfg.ToneFrequency = def.ToneFrequency
	}
	if cfg.CreateDelay <= 0 {
		cfg.CreateDelay = def.CreateDelay
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("backend", Name)

	b := &Backend{
		cfg:    cfg,
		logger: logger,
		faults: make(map[string]error),
	}
	for i := 0; i < cfg.Speakers; i++ {
		name := fmt.Sprintf("Virtual Speaker %d", i+1)
		b.speakers = append(b.speakers, speaker{
			device: audio.Device{
				ID:       deviceID("speaker:" + name),
				Name:     name,
				Channels: cfg.SpeakerChannels,
				Kind:     audio.Speaker,
			},
			monitor: audio.Device{
				ID:         deviceID("monitor:" + name),
				Name:       "Monitor of " + name,
				Channels:   cfg.SpeakerChannels,
				IsLoopback: true,
				Kind:       audio.Microphone,
			},
		})
	}
	b.tone = audio.Device{
		ID:       deviceID("tone"),
		Name:     "Virtual Tone Microphone",
		Channels: 1,
		Kind:     audio.Microphone,
	}

	b.loop = mainloop.New(b.iterate, cfg.Tick, logger)
	b.loop.Start()
	logger.WithField("speakers", cfg.Speakers).Debug("virtual backend started")
	return b
}

// Name implements backend.Backend
func (b *Backend) Name() string { return Name }

// Enumerate implements backend.Backend
func (b *Backend) Enumerate(kind audio.Kind) ([]audio.Device, error) {
	return mainloop.Do(b.loop, func() ([]audio.Device, error) {
		if b.closed {
			return nil, errClosed("enumerate")
		}
		var out []audio.Device
		switch kind {
		case audio.Speaker:
			for _, s := range b.speakers {
				out = append(out, s.device)
			}
		case audio.Microphone:
			out = append(out, b.tone)
			for _, s := range b.speakers {
				out = append(out, s.monitor)
			}
		}
		return out, nil
	})
}

// Default implements backend.Backend
func (b *Backend) Default(kind audio.Kind) (audio.Device, error) {
	devices, err := b.Enumerate(kind)
	if err != nil {
		return audio.Device{}, err
	}
	if len(devices) == 0 {
		return audio.Device{}, &audio.NotFoundError{Identifier: "default " + kind.String()}
	}
	return devices[0], nil
}

// OpenStream implements backend.Backend. Creation completes asynchronously
// on the loop goroutine; this call waits for it.
func (b *Backend) OpenStream(p backend.StreamParams) (backend.Stream, error) {
	if p.Channels <= 0 {
		return nil, audio.NewFormatError(fmt.Sprintf("channel count must be positive, not %d", p.Channels))
	}
	if p.SampleRate <= 0 {
		return nil, audio.NewFormatError(fmt.Sprintf("sample rate must be positive, not %d", p.SampleRate))
	}

	s := &stream{
		b:        b,
		params:   p,
		channels: p.Channels,
		rate:     p.SampleRate,
		state:    streamCreating,
		wait:     b.cfg.CreateDelay,
	}
	s.blocksize = p.Blocksize
	if len(b.cfg.BlockSizes) > 0 {
		s.blocksize = b.cfg.BlockSizes[0]
	}
	if s.blocksize <= 0 {
		s.blocksize = 512
	}

	var openErr error
	b.loop.Call(func() {
		if b.closed {
			openErr = errClosed("open stream")
			return
		}
		switch p.Direction {
		case audio.Speaker:
			s.speaker = b.findSpeaker(p.Device.ID, false)
			if s.speaker == nil {
				openErr = &audio.NotFoundError{Identifier: p.Device.ID}
				return
			}
		case audio.Microphone:
			if b.cfg.NativeRate > 0 {
				s.rate = b.cfg.NativeRate
			}
			if p.Device.ID != b.tone.ID {
				s.speaker = b.findSpeaker(p.Device.ID, true)
				if s.speaker == nil {
					openErr = &audio.NotFoundError{Identifier: p.Device.ID}
					return
				}
			}
		}
		b.streams = append(b.streams, s)
	})
	if openErr != nil {
		return nil, openErr
	}

	ready := b.loop.WaitFor(func() bool { return s.state != streamCreating }, b.cfg.OpenTimeout)
	if !ready {
		return nil, &audio.BackendError{Op: "stream creation", Message: "timed out waiting for the loop"}
	}

	b.logger.WithFields(logrus.Fields{
		"device":    p.Device.Name,
		"direction": p.Direction.String(),
		"rate":      s.rate,
		"channels":  s.channels,
	}).Debug("stream ready")
	return s, nil
}

// InjectError makes the next iteration report err to every running stream
// on the device
func (b *Backend) InjectError(deviceID string, err error) {
	b.loop.Call(func() {
		b.faults[deviceID] = err
	})
}

// Close implements backend.Backend
func (b *Backend) Close() error {
	var open int
	b.loop.Call(func() {
		open = len(b.streams)
	})
	b.loop.Stop()
	b.loop.Call(func() {
		b.closed = true
		b.streams = nil
	})
	if open > 0 {
		b.logger.WithField("streams", open).Warn("closing backend with open streams")
	}
	return nil
}

func (b *Backend) findSpeaker(id string, monitor bool) *speaker {
	for i := range b.speakers {
		d := b.speakers[i].device
		if monitor {
			d = b.speakers[i].monitor
		}
		if d.ID == id {
			return &b.speakers[i]
		}
	}
	return nil
}

// iterate runs one round of the simulated server with the loop lock held
func (b *Backend) iterate() {
	live := b.streams[:0]
	for _, s := range b.streams {
		switch s.state {
		case streamCreating:
			s.wait--
			if s.wait <= 0 {
				s.state = streamReady
			}
		case streamTerminating:
			s.state = streamTerminated
			continue
		}
		live = append(live, s)
	}
	for i := len(live); i < len(b.streams); i++ {
		b.streams[i] = nil
	}
	b.streams = live

	for id, err := range b.faults {
		for _, s := range b.streams {
			if s.state == streamRunning && s.params.Device.ID == id {
				s.handler.Fail(err)
			}
		}
		delete(b.faults, id)
	}

	// playback first so monitors see this round's output
	for _, s := range b.streams {
		if s.state == streamRunning && s.params.Direction == audio.Speaker {
			b.render(s)
		}
	}
	for _, s := range b.streams {
		if s.state == streamRunning && s.params.Direction == audio.Microphone {
			b.capture(s)
		}
	}
}

func (b *Backend) render(s *stream) {
	frames := s.nextBlock()
	out := s.scratch(frames)
	s.handler.Render(out, frames)

	// route to every monitor of this speaker in the speaker's layout
	dc := s.speaker.device.Channels
	for _, m := range b.streams {
		if m == s || m.state != streamRunning || m.speaker != s.speaker || m.params.Direction != audio.Microphone {
			continue
		}
		for f := 0; f < frames; f++ {
			for c := 0; c < dc; c++ {
				var v float32
				if c < s.channels {
					v = out[f*s.channels+c]
				}
				m.pending = append(m.pending, v)
			}
		}
	}
}

func (b *Backend) capture(s *stream) {
	frames := s.nextBlock()
	in := s.scratch(frames)
	for i := range in {
		in[i] = 0
	}

	if s.speaker == nil {
		step := 2 * math.Pi * b.cfg.ToneFrequency / float64(s.rate)
		for f := 0; f < frames; f++ {
			v := float32(0.5 * math.Sin(s.phase))
			s.phase += step
			for c := 0; c < s.channels; c++ {
				in[f*s.channels+c] = v
			}
		}
		s.phase = math.Mod(s.phase, 2*math.Pi)
	} else {
		dc := s.speaker.monitor.Channels
		avail := len(s.pending) / dc
		n := min(avail, frames)
		for f := 0; f < n; f++ {
			for c := 0; c < s.channels && c < dc; c++ {
				in[f*s.channels+c] = s.pending[f*dc+c]
			}
		}
		s.pending = append(s.pending[:0], s.pending[n*dc:]...)
	}

	s.handler.Capture(in, frames)
}

func errClosed(op string) error {
	return &audio.BackendError{Op: op, Message: "virtual backend is closed"}
}
