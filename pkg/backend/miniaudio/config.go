// ABOUTME: Settings shared by the cgo backend and its stub
// ABOUTME: Loopback naming rules for sound servers that expose monitors as sources
package miniaudio

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Name is the backend name used for selection
const Name = "miniaudio"

// Config configures the miniaudio backend
type Config struct {
	// PeriodFrames is the device period when the caller gives no blocksize
	PeriodFrames int
	Logger       logrus.FieldLogger
}

// isMonitorName reports whether a capture source is a sound server monitor
// of an output, which makes it a loopback device
func isMonitorName(name string) bool {
	return strings.HasPrefix(name, "Monitor of ") || strings.HasSuffix(name, ".monitor")
}
