//go:build !cgo

// ABOUTME: Stub used when cgo is disabled
// ABOUTME: Reports that the miniaudio backend is unavailable
package miniaudio

import (
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
)

// New always fails without cgo
func New(cfg Config) (backend.Backend, error) {
	return nil, &audio.BackendError{Op: "miniaudio init", Message: "built without cgo support"}
}
