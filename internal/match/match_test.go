// ABOUTME: Tests for device identifier resolution
// ABOUTME: Covers tier order, loopback tie-break and identifier types
package match

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

var devices = []audio.Device{
	{ID: "alsa_output.pci.analog-stereo", Name: "Built-in Audio Analog Stereo", Channels: 2},
	{ID: "monitor.analog", Name: "Monitor of Built-in Audio Analog Stereo", Channels: 2, IsLoopback: true, Kind: audio.Microphone},
	{ID: "usb-headset", Name: "USB Headset", Channels: 1},
	{ID: "7", Name: "Line (Scarlett 2i2)", Channels: 2},
	{ID: "Loop Name", Name: "Loop Name", Channels: 2, IsLoopback: true},
}

func TestResolveTiers(t *testing.T) {
	tests := []struct {
		name       string
		identifier any
		expectedID string
	}{
		{"exact id", "usb-headset", "usb-headset"},
		{"exact name", "USB Headset", "usb-headset"},
		{"substring", "Scarlett", "7"},
		{"fuzzy", "Bltn", "alsa_output.pci.analog-stereo"},
		{"fuzzy with metacharacters", "(2i2)", "7"},
		{"integer id", 7, "7"},
		{"unsigned id", uint8(7), "7"},
		{"real before loopback on substring", "Analog Stereo", "alsa_output.pci.analog-stereo"},
		{"exact id beats real name match", "Loop Name", "Loop Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(tt.identifier, devices)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.ID != tt.expectedID {
				t.Errorf("expected %q, got %q", tt.expectedID, d.ID)
			}
		})
	}
}

func TestResolveTieBreak(t *testing.T) {
	candidates := []audio.Device{
		{ID: "a", Name: "Studio", IsLoopback: true},
		{ID: "b", Name: "Studio"},
	}
	d, err := Resolve("Studio", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != "b" {
		t.Errorf("expected real device to win, got %q", d.ID)
	}
}

func TestResolveIntegerSkipsNames(t *testing.T) {
	candidates := []audio.Device{{ID: "x", Name: "Card 3"}}
	_, err := Resolve(3, candidates)
	if !errors.Is(err, audio.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *audio.NotFoundError
	if !errors.As(err, &nf) || nf.Identifier != 3 {
		t.Errorf("expected NotFoundError carrying the identifier, got %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	if _, err := Resolve("nothing like it", devices); !errors.Is(err, audio.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := Resolve(1.5, devices); !errors.Is(err, audio.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	if _, err := Resolve("usb", nil); !errors.Is(err, audio.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty candidates, got %v", err)
	}
}

func TestWithoutLoopback(t *testing.T) {
	filtered := WithoutLoopback(devices)
	if len(filtered) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(filtered))
	}
	if _, err := Resolve("Monitor of", filtered); !errors.Is(err, audio.ErrNotFound) {
		t.Errorf("loopback device should not resolve after filtering, got %v", err)
	}
}

func TestFuzzy(t *testing.T) {
	p := Fuzzy("a.b")
	if !p.MatchString("xa--.--bx") {
		t.Error("expected in-order characters to match")
	}
	if p.MatchString("aXb") {
		t.Error("dot must be matched literally")
	}
}
