// ABOUTME: Tests for logger construction
// ABOUTME: Checks level parsing, formatters and file output
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		logger, closer, err := New(Options{Level: tt.level, Quiet: true})
		if err != nil {
			t.Fatalf("level %q: unexpected error: %v", tt.level, err)
		}
		if logger.GetLevel() != tt.want {
			t.Errorf("level %q: got %v, want %v", tt.level, logger.GetLevel(), tt.want)
		}
		_ = closer.Close()
	}
}

func TestNewInvalid(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundcard.log")
	logger, closer, err := New(Options{Format: "json", File: path, Quiet: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.WithField("stream", "abc").Info("opened")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"stream":"abc"`) || !strings.Contains(line, `"msg":"opened"`) {
		t.Errorf("unexpected log line: %s", line)
	}
}
