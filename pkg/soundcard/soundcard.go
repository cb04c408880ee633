// ABOUTME: Public entry point binding one audio backend
// ABOUTME: Device discovery, lookup and application naming
package soundcard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/soundcard-go/internal/bridge"
	"github.com/Resonate-Protocol/soundcard-go/internal/match"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend/miniaudio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend/oto"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend/virtual"
	"github.com/sirupsen/logrus"
)

// BackendAuto picks miniaudio and falls back to oto
const BackendAuto = "auto"

// Metrics receives stream statistics
type Metrics = bridge.Metrics

// Options configures a Context
type Options struct {
	// Backend is auto, miniaudio, oto or virtual. Ignored when Custom is set.
	Backend string
	// Custom supplies an already opened backend. The Context closes it.
	Custom backend.Backend

	Miniaudio miniaudio.Config
	Oto       oto.Config
	Virtual   virtual.Config

	// AppName is reported to sound servers that show it. Defaults to the
	// executable name.
	AppName string

	Logger  logrus.FieldLogger
	Metrics Metrics
}

// Context owns a backend and every device handle obtained from it
type Context struct {
	backend backend.Backend
	logger  logrus.FieldLogger
	metrics Metrics

	mu     sync.RWMutex
	name   string
	closed bool
}

// New opens the selected backend
func New(opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := opts.Custom
	if b == nil {
		var err error
		b, err = openBackend(opts, logger)
		if err != nil {
			return nil, err
		}
	}

	name := opts.AppName
	if name == "" {
		name = programName()
	}

	logger.WithFields(logrus.Fields{
		"backend": b.Name(),
		"app":     name,
	}).Debug("soundcard context ready")

	return &Context{
		backend: b,
		logger:  logger,
		metrics: opts.Metrics,
		name:    name,
	}, nil
}

func openBackend(opts Options, logger logrus.FieldLogger) (backend.Backend, error) {
	switch opts.Backend {
	case "", BackendAuto:
		cfg := opts.Miniaudio
		cfg.Logger = logger
		b, err := miniaudio.New(cfg)
		if err == nil {
			return b, nil
		}
		logger.WithError(err).Info("miniaudio unavailable, falling back to oto")
		ocfg := opts.Oto
		ocfg.Logger = logger
		return oto.New(ocfg), nil
	case miniaudio.Name:
		cfg := opts.Miniaudio
		cfg.Logger = logger
		b, err := miniaudio.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio backend: %w", err)
		}
		return b, nil
	case oto.Name:
		cfg := opts.Oto
		cfg.Logger = logger
		return oto.New(cfg), nil
	case virtual.Name:
		cfg := opts.Virtual
		cfg.Logger = logger
		return virtual.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (expected auto, %s, %s or %s)",
			opts.Backend, miniaudio.Name, oto.Name, virtual.Name)
	}
}

// programName guesses a readable application name from the executable
func programName() string {
	if len(os.Args) == 0 {
		return "soundcard"
	}
	name := filepath.Base(os.Args[0])
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Close releases the backend. Streams must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.backend.Close(); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", c.backend.Name(), err)
	}
	return nil
}

// Backend returns the backend name
func (c *Context) Backend() string { return c.backend.Name() }

// Name returns the application name reported to the sound server
func (c *Context) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName changes the application name for streams opened afterwards
func (c *Context) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *Context) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &audio.StateError{Op: "use context", State: audio.StateClosed}
	}
	return nil
}

func (c *Context) devices(kind audio.Kind) ([]audio.Device, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	devices, err := c.backend.Enumerate(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
	}
	return devices, nil
}

// AllSpeakers lists every output device
func (c *Context) AllSpeakers() ([]*Speaker, error) {
	devices, err := c.devices(audio.Speaker)
	if err != nil {
		return nil, err
	}
	speakers := make([]*Speaker, 0, len(devices))
	for _, d := range devices {
		speakers = append(speakers, &Speaker{device{ctx: c, info: d}})
	}
	return speakers, nil
}

// AllMicrophones lists every input device, optionally including loopback
// devices that record what a speaker plays
func (c *Context) AllMicrophones(includeLoopback bool) ([]*Microphone, error) {
	devices, err := c.devices(audio.Microphone)
	if err != nil {
		return nil, err
	}
	if !includeLoopback {
		devices = match.WithoutLoopback(devices)
	}
	mics := make([]*Microphone, 0, len(devices))
	for _, d := range devices {
		mics = append(mics, &Microphone{device{ctx: c, info: d}})
	}
	return mics, nil
}

// DefaultSpeaker returns the output the system would pick
func (c *Context) DefaultSpeaker() (*Speaker, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	d, err := c.backend.Default(audio.Speaker)
	if err != nil {
		return nil, fmt.Errorf("failed to get default speaker: %w", err)
	}
	return &Speaker{device{ctx: c, info: d}}, nil
}

// DefaultMicrophone returns the input the system would pick
func (c *Context) DefaultMicrophone() (*Microphone, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	d, err := c.backend.Default(audio.Microphone)
	if err != nil {
		return nil, fmt.Errorf("failed to get default microphone: %w", err)
	}
	return &Microphone{device{ctx: c, info: d}}, nil
}

// GetSpeaker finds a speaker by ID, exact name, name substring or fuzzy name
func (c *Context) GetSpeaker(id any) (*Speaker, error) {
	devices, err := c.devices(audio.Speaker)
	if err != nil {
		return nil, err
	}
	d, err := match.Resolve(id, devices)
	if err != nil {
		return nil, err
	}
	return &Speaker{device{ctx: c, info: d}}, nil
}

// GetMicrophone finds a microphone the way GetSpeaker finds speakers
func (c *Context) GetMicrophone(id any, includeLoopback bool) (*Microphone, error) {
	devices, err := c.devices(audio.Microphone)
	if err != nil {
		return nil, err
	}
	if !includeLoopback {
		devices = match.WithoutLoopback(devices)
	}
	d, err := match.Resolve(id, devices)
	if err != nil {
		return nil, err
	}
	return &Microphone{device{ctx: c, info: d}}, nil
}

// IsNotFound reports whether err means a device lookup failed
func IsNotFound(err error) bool {
	return errors.Is(err, audio.ErrNotFound)
}
