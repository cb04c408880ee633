package miniaudio

import "testing"

func TestIsMonitorName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"Monitor of Built-in Audio Analog Stereo", true},
		{"alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", true},
		{"Built-in Audio Analog Stereo", false},
		{"Studio Monitor Mic", false},
	}

	for _, tt := range tests {
		if got := isMonitorName(tt.name); got != tt.expected {
			t.Errorf("isMonitorName(%q) = %v, expected %v", tt.name, got, tt.expected)
		}
	}
}
