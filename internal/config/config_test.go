// ABOUTME: Tests for configuration loading
// ABOUTME: Covers TOML parsing, flag precedence and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const sample = `
backend = "virtual"
samplerate = 44100
blocksize = 256
app_name = "studio"

[log]
level = "debug"
format = "json"

[metrics]
addr = ":9100"

[virtual]
speakers = 2
native_rate = 48000
block_sizes = [128, 480]
tick_ms = 3
unmapped_mean = true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soundcard.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend != "virtual" || cfg.SampleRate != 44100 || cfg.Blocksize != 256 || cfg.AppName != "studio" {
		t.Errorf("unexpected top level values: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("unexpected metrics addr %q", cfg.Metrics.Addr)
	}

	v := cfg.VirtualBackend()
	if v.Speakers != 2 || v.NativeRate != 48000 || len(v.BlockSizes) != 2 || !v.UnmappedMean {
		t.Errorf("unexpected virtual config: %+v", v)
	}
	if v.Tick != 3*time.Millisecond {
		t.Errorf("expected 3ms tick, got %v", v.Tick)
	}
}

func TestLoadMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, err := Load(missing, false)
	if err != nil {
		t.Fatalf("optional config should not fail: %v", err)
	}
	if cfg.Backend != "auto" || cfg.SampleRate != 48000 {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	if _, err := Load(missing, true); err == nil {
		t.Error("required config should fail when missing")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "backend = "},
		{"backend", `backend = "jack"`},
		{"samplerate", "samplerate = 0"},
		{"format", "[log]\nformat = \"xml\""},
		{"block sizes", "[virtual]\nblock_sizes = [64, 0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content), true); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend", "auto", "")
	flags.Int("samplerate", 48000, "")
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--samplerate", "96000", "--log-level", "warn"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	if err := cfg.ApplyFlags(flags); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SampleRate != 96000 || cfg.Log.Level != "warn" {
		t.Errorf("flags should override the file: %+v", cfg)
	}
	// not set on the command line, so the file value stays
	if cfg.Backend != "virtual" {
		t.Errorf("expected backend from file, got %q", cfg.Backend)
	}
}
