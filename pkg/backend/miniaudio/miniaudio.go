//go:build cgo

// ABOUTME: Native backend on top of miniaudio via malgo
// ABOUTME: Covers PulseAudio/ALSA, CoreAudio and WASAPI with float32 streams
package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/mainloop"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

const (
	loopbackPrefix  = "loopback:"
	transitionLimit = 2 * time.Second
)

// Backend talks to the platform sound system through one malgo context.
// Context calls are serialized through a mainloop lock; miniaudio runs its
// own audio threads, so the loop has no iterate goroutine.
type Backend struct {
	cfg    Config
	ctx    *malgo.AllocatedContext
	loop   *mainloop.Loop
	logger logrus.FieldLogger

	// native ids by exported id, refreshed on every enumeration
	ids map[string]malgo.DeviceID
}

// New initializes a malgo context
func New(cfg Config) (backend.Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("backend", Name)

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug(strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, &audio.BackendError{Op: "miniaudio init", Err: err}
	}

	logger.Debug("malgo context initialized")
	return &Backend{
		cfg:    cfg,
		ctx:    ctx,
		loop:   mainloop.New(nil, 0, logger),
		logger: logger,
		ids:    make(map[string]malgo.DeviceID),
	}, nil
}

// Name implements backend.Backend
func (b *Backend) Name() string { return Name }

// Enumerate implements backend.Backend. Real devices come first, loopback
// devices after them.
func (b *Backend) Enumerate(kind audio.Kind) ([]audio.Device, error) {
	return mainloop.Do(b.loop, func() ([]audio.Device, error) {
		return b.enumerateLocked(kind)
	})
}

func (b *Backend) enumerateLocked(kind audio.Kind) ([]audio.Device, error) {
	devType := malgo.Playback
	if kind == audio.Microphone {
		devType = malgo.Capture
	}
	infos, err := b.ctx.Devices(devType)
	if err != nil {
		return nil, &audio.BackendError{Op: "device enumeration", Err: err}
	}

	var devices []audio.Device
	for i := range infos {
		info := &infos[i]
		id := info.ID.String()
		b.ids[id] = info.ID
		name := info.Name()
		devices = append(devices, audio.Device{
			ID:         id,
			Name:       name,
			Channels:   b.channelsLocked(devType, info),
			IsLoopback: kind == audio.Microphone && isMonitorName(name),
			Kind:       kind,
		})
	}

	// WASAPI captures any output through a loopback stream on the output itself
	if kind == audio.Microphone && runtime.GOOS == "windows" {
		outputs, err := b.ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, &audio.BackendError{Op: "device enumeration", Err: err}
		}
		for i := range outputs {
			info := &outputs[i]
			id := loopbackPrefix + info.ID.String()
			b.ids[id] = info.ID
			devices = append(devices, audio.Device{
				ID:         id,
				Name:       info.Name(),
				Channels:   b.channelsLocked(malgo.Playback, info),
				IsLoopback: true,
				Kind:       audio.Microphone,
			})
		}
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return !devices[i].IsLoopback && devices[j].IsLoopback
	})
	return devices, nil
}

// channelsLocked returns the widest native format of a device. Some
// backends only report formats through a detailed query.
func (b *Backend) channelsLocked(devType malgo.DeviceType, info *malgo.DeviceInfo) int {
	formats := info.Formats
	if len(formats) == 0 {
		detail, err := b.ctx.DeviceInfo(devType, info.ID, malgo.Shared)
		if err == nil {
			formats = detail.Formats
		}
	}
	channels := 0
	for _, f := range formats {
		channels = max(channels, int(f.Channels))
	}
	if channels == 0 {
		channels = 2
	}
	return channels
}

// Default implements backend.Backend
func (b *Backend) Default(kind audio.Kind) (audio.Device, error) {
	return mainloop.Do(b.loop, func() (audio.Device, error) {
		devType := malgo.Playback
		if kind == audio.Microphone {
			devType = malgo.Capture
		}
		infos, err := b.ctx.Devices(devType)
		if err != nil {
			return audio.Device{}, &audio.BackendError{Op: "device enumeration", Err: err}
		}
		devices, err := b.enumerateLocked(kind)
		if err != nil {
			return audio.Device{}, err
		}
		for i := range infos {
			if infos[i].IsDefault == 0 {
				continue
			}
			id := infos[i].ID.String()
			for _, d := range devices {
				if d.ID == id {
					return d, nil
				}
			}
		}
		for _, d := range devices {
			if !d.IsLoopback {
				return d, nil
			}
		}
		return audio.Device{}, &audio.NotFoundError{Identifier: "default " + kind.String()}
	})
}

// OpenStream implements backend.Backend
func (b *Backend) OpenStream(p backend.StreamParams) (backend.Stream, error) {
	s := &stream{b: b, params: p}

	var initErr error
	b.loop.Call(func() {
		id, ok := b.ids[p.Device.ID]
		if !ok {
			if _, err := b.enumerateLocked(p.Direction); err != nil {
				initErr = err
				return
			}
			if id, ok = b.ids[p.Device.ID]; !ok {
				initErr = &audio.NotFoundError{Identifier: p.Device.ID}
				return
			}
		}

		devType := malgo.Playback
		switch {
		case p.Direction == audio.Microphone && strings.HasPrefix(p.Device.ID, loopbackPrefix):
			devType = malgo.Loopback
		case p.Direction == audio.Microphone:
			devType = malgo.Capture
		}

		cfg := malgo.DefaultDeviceConfig(devType)
		share := malgo.Shared
		if p.Exclusive {
			share = malgo.Exclusive
		}
		period := p.Blocksize
		if period <= 0 {
			period = b.cfg.PeriodFrames
		}
		if period > 0 {
			cfg.PeriodSizeInFrames = uint32(period)
		}
		cfg.Alsa.NoMMap = 1
		name := p.StreamName
		if name == "" {
			name = p.AppName
		}

		if devType == malgo.Playback {
			cfg.SampleRate = uint32(p.SampleRate)
			cfg.Playback.Format = malgo.FormatF32
			cfg.Playback.Channels = uint32(p.Channels)
			cfg.Playback.DeviceID = id.Pointer()
			cfg.Playback.ShareMode = share
			cfg.Pulse.StreamNamePlayback = name
		} else {
			// leave the rate open so captures arrive at the native rate
			cfg.SampleRate = 0
			cfg.Capture.Format = malgo.FormatF32
			cfg.Capture.Channels = uint32(p.Channels)
			cfg.Capture.DeviceID = id.Pointer()
			cfg.Capture.ShareMode = share
			cfg.Pulse.StreamNameCapture = name
		}

		dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
			Data: s.data,
			Stop: s.stopped,
		})
		if err != nil {
			initErr = &audio.BackendError{Op: "device init", Err: err}
			return
		}
		s.dev = dev
		s.period = period
	})
	if initErr != nil {
		return nil, initErr
	}

	if p.Direction == audio.Speaker {
		s.channels = int(s.dev.PlaybackChannels())
	} else {
		s.channels = int(s.dev.CaptureChannels())
	}
	s.rate = int(s.dev.SampleRate())

	b.logger.WithFields(logrus.Fields{
		"device":    p.Device.Name,
		"direction": p.Direction.String(),
		"rate":      s.rate,
		"channels":  s.channels,
	}).Debug("device initialized")
	return s, nil
}

// Close implements backend.Backend
func (b *Backend) Close() error {
	var err error
	b.loop.Call(func() {
		if b.ctx == nil {
			return
		}
		if uerr := b.ctx.Uninit(); uerr != nil {
			err = &audio.BackendError{Op: "miniaudio uninit", Err: uerr}
		}
		b.ctx.Free()
		b.ctx = nil
	})
	return err
}

type stream struct {
	b        *Backend
	params   backend.StreamParams
	dev      *malgo.Device
	channels int
	rate     int
	period   int

	mu       sync.Mutex
	handler  backend.Handler
	stopping bool
	scratch  []float32
}

func (s *stream) Channels() int   { return s.channels }
func (s *stream) Blocksize() int  { return s.period }
func (s *stream) SampleRate() int { return s.rate }

// Latency is one device period
func (s *stream) Latency() time.Duration {
	if s.period <= 0 || s.rate <= 0 {
		return 0
	}
	return time.Duration(s.period) * time.Second / time.Duration(s.rate)
}

func (s *stream) InstallCallback(h backend.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	return nil
}

// transition waits for the device to reach the started or stopped state
type transition struct {
	dev     *malgo.Device
	started bool
	since   time.Time
}

func (t transition) State() mainloop.OpState {
	if t.dev.IsStarted() == t.started {
		return mainloop.OpDone
	}
	if time.Since(t.since) > transitionLimit {
		return mainloop.OpCancelled
	}
	return mainloop.OpRunning
}

func (t transition) Release() {}

func (s *stream) Start() error {
	s.mu.Lock()
	installed := s.handler != nil
	s.mu.Unlock()
	if !installed {
		return &audio.BackendError{Op: "device start", Message: "no callback installed"}
	}

	var startErr error
	state := s.b.loop.Block(func() mainloop.Operation {
		if err := s.dev.Start(); err != nil {
			startErr = err
			return nil
		}
		return transition{dev: s.dev, started: true, since: time.Now()}
	})
	if startErr != nil {
		return &audio.BackendError{Op: "device start", Err: startErr}
	}
	if state != mainloop.OpDone {
		return &audio.BackendError{Op: "device start", Message: "device did not start"}
	}
	return nil
}

func (s *stream) StopAndDispose() error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	var stopErr error
	state := s.b.loop.Block(func() mainloop.Operation {
		if !s.dev.IsStarted() {
			return nil
		}
		if err := s.dev.Stop(); err != nil {
			stopErr = err
			return nil
		}
		return transition{dev: s.dev, started: false, since: time.Now()}
	})
	s.b.loop.Call(s.dev.Uninit)

	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()

	if stopErr != nil {
		return &audio.BackendError{Op: "device stop", Err: stopErr}
	}
	if state == mainloop.OpCancelled {
		return &audio.BackendError{Op: "device stop", Message: fmt.Sprintf("device still running after %v", transitionLimit)}
	}
	return nil
}

// data runs on the miniaudio thread
func (s *stream) data(out, in []byte, frames uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		for i := range out {
			out[i] = 0
		}
		return
	}

	n := int(frames) * s.channels
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	buf := s.scratch[:n]

	if s.params.Direction == audio.Speaker {
		s.handler.Render(buf, int(frames))
		for i, v := range buf {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return
	}

	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}
	s.handler.Capture(buf, int(frames))
}

// stopped runs when miniaudio stops the device, requested or not
func (s *stream) stopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || s.handler == nil {
		return
	}
	s.handler.Fail(&audio.BackendError{Op: "device", Message: "stopped unexpectedly"})
}
