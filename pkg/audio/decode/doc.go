// ABOUTME: Audio decoder package for reading audio files
// ABOUTME: Provides the Decoder interface and a WAV implementation
// Package decode reads audio files into interleaved float32 buffers
// that can be handed straight to a player.
//
// Supports: WAV PCM (16, 24 and 32-bit)
//
// Example:
//
//	f, err := os.Open("in.wav")
//	dec, err := decode.NewWAV(f)
//	buf, err := decode.ReadAll(dec)
package decode
