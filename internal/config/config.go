// ABOUTME: Command line configuration loaded from TOML
// ABOUTME: File values apply first, explicitly set flags win
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/backend/virtual"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// DefaultPath is read when no --config is given; it may be absent
const DefaultPath = "soundcard.toml"

// Config is the full set of CLI settings
type Config struct {
	Backend    string `toml:"backend"`
	SampleRate int    `toml:"samplerate"`
	Blocksize  int    `toml:"blocksize"`
	AppName    string `toml:"app_name"`

	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Virtual VirtualConfig `toml:"virtual"`
}

// LogConfig selects logrus level, formatter and destination
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// VirtualConfig shapes the in-process backend
type VirtualConfig struct {
	Speakers     int   `toml:"speakers"`
	NativeRate   int   `toml:"native_rate"`
	BlockSizes   []int `toml:"block_sizes"`
	TickMs       int   `toml:"tick_ms"`
	UnmappedMean bool  `toml:"unmapped_mean"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Backend:    "auto",
		SampleRate: 48000,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Virtual: VirtualConfig{
			Speakers: 1,
			TickMs:   10,
		},
	}
}

// Load reads a TOML file over the defaults. A missing file is only an
// error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return cfg, cfg.Validate()
}

// ApplyFlags copies flags the user set explicitly over the loaded values
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "backend":
			c.Backend = f.Value.String()
		case "samplerate":
			c.SampleRate, err = flags.GetInt(f.Name)
		case "blocksize":
			c.Blocksize, err = flags.GetInt(f.Name)
		case "app-name":
			c.AppName = f.Value.String()
		case "log-level":
			c.Log.Level = f.Value.String()
		case "log-format":
			c.Log.Format = f.Value.String()
		case "log-file":
			c.Log.File = f.Value.String()
		case "metrics-addr":
			c.Metrics.Addr = f.Value.String()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to apply flags: %w", err)
	}
	return c.Validate()
}

// Validate checks value ranges
func (c Config) Validate() error {
	switch c.Backend {
	case "auto", "miniaudio", "oto", "virtual":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %d", c.SampleRate)
	}
	if c.Blocksize < 0 {
		return fmt.Errorf("blocksize must not be negative, got %d", c.Blocksize)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	for _, n := range c.Virtual.BlockSizes {
		if n <= 0 {
			return fmt.Errorf("virtual block sizes must be positive, got %d", n)
		}
	}
	return nil
}

// VirtualBackend converts the [virtual] table into backend settings
func (c Config) VirtualBackend() virtual.Config {
	cfg := virtual.DefaultConfig()
	if c.Virtual.Speakers > 0 {
		cfg.Speakers = c.Virtual.Speakers
	}
	cfg.NativeRate = c.Virtual.NativeRate
	cfg.BlockSizes = c.Virtual.BlockSizes
	if c.Virtual.TickMs > 0 {
		cfg.Tick = time.Duration(c.Virtual.TickMs) * time.Millisecond
	}
	cfg.UnmappedMean = c.Virtual.UnmappedMean
	return cfg
}
