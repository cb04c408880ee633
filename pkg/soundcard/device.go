// ABOUTME: Speaker and microphone handles
// ABOUTME: Open blocking players and recorders on a resolved device
package soundcard

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/soundcard-go/internal/bridge"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

type device struct {
	ctx  *Context
	info audio.Device
}

// ID is the backend's identifier for the device
func (d device) ID() string { return d.info.ID }

// Name is the human readable device name
func (d device) Name() string { return d.info.Name }

// Channels is the number of channels the device declares
func (d device) Channels() int { return d.info.Channels }

// Device returns the enumerated snapshot
func (d device) Device() audio.Device { return d.info }

func (d device) String() string { return d.info.String() }

func (d device) config(samplerate int, opts []StreamOption) (bridge.Config, error) {
	if err := d.ctx.check(); err != nil {
		return bridge.Config{}, err
	}
	var sc streamConfig
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.channelsSet && sc.channels <= 0 {
		return bridge.Config{}, audio.NewFormatError(fmt.Sprintf("channel count must be positive, not %d", sc.channels))
	}
	return bridge.Config{
		Device:     d.info,
		SampleRate: samplerate,
		ChannelMap: sc.channelMap,
		Channels:   sc.channels,
		Blocksize:  sc.blocksize,
		Exclusive:  sc.exclusive,
		AppName:    d.ctx.Name(),
		Name:       sc.name,
		Logger:     d.ctx.logger,
		Metrics:    d.ctx.metrics,
	}, nil
}

// Speaker is an output device
type Speaker struct {
	device
}

// Player opens a playback stream. Close it to play out what is queued.
func (s *Speaker) Player(samplerate int, opts ...StreamOption) (*Player, error) {
	cfg, err := s.config(samplerate, opts)
	if err != nil {
		return nil, err
	}
	p, err := bridge.OpenPlayer(s.ctx.backend, cfg)
	if err != nil {
		return nil, err
	}
	return &Player{p}, nil
}

// Play opens a stream, plays buf to the end and closes the stream
func (s *Speaker) Play(buf audio.Buffer, samplerate int, opts ...StreamOption) error {
	p, err := s.Player(samplerate, opts...)
	if err != nil {
		return err
	}
	if err := p.Play(buf); err != nil {
		return errors.Join(err, p.Abandon())
	}
	return p.Close()
}

// Microphone is an input device, or a loopback of an output device
type Microphone struct {
	device
}

// IsLoopback reports whether the microphone records a speaker's output
func (m *Microphone) IsLoopback() bool { return m.info.IsLoopback }

// Recorder opens a capture stream
func (m *Microphone) Recorder(samplerate int, opts ...StreamOption) (*Recorder, error) {
	cfg, err := m.config(samplerate, opts)
	if err != nil {
		return nil, err
	}
	r, err := bridge.OpenRecorder(m.ctx.backend, cfg)
	if err != nil {
		return nil, err
	}
	return &Recorder{r}, nil
}

// Record opens a stream, records exactly frames frames and closes it
func (m *Microphone) Record(frames, samplerate int, opts ...StreamOption) (audio.Buffer, error) {
	if frames <= 0 {
		return audio.Buffer{}, audio.NewFormatError(fmt.Sprintf("frame count must be positive, not %d", frames))
	}
	r, err := m.Recorder(samplerate, opts...)
	if err != nil {
		return audio.Buffer{}, err
	}
	buf, err := r.Record(frames)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return buf, err
}
