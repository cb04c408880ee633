// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Device, Buffer, State and the shared error taxonomy
// Package audio provides the fundamental types shared by the soundcard library.
//
// This package defines core types used throughout the library:
//   - Device: A snapshot of a speaker or microphone reported by a backend
//   - Buffer: Interleaved float32 PCM, frames x channels, in [-1, 1]
//   - State: The lifecycle of an open stream
//
// It also defines the error taxonomy. Every error returned by the library
// matches one of ErrNotFound, ErrFormat, ErrBackend or ErrState with errors.Is.
//
// Example:
//
//	buf, err := audio.FromChannels(left, right)
//	if errors.Is(err, audio.ErrFormat) {
//	    // channels had different lengths
//	}
package audio
