// ABOUTME: Audio encoder package for writing recorded audio to files
// ABOUTME: Provides the Encoder interface and a WAV implementation
// Package encode writes interleaved float32 buffers to audio files.
//
// Supports: WAV PCM, 16-bit and 24-bit
//
// Example:
//
//	f, err := os.Create("out.wav")
//	enc, err := encode.NewWAV(f, 48000, 2, 16)
//	err = enc.Encode(buf)
//	err = enc.Close()
package encode
