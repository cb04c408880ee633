// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts captured audio from the device rate to the requested rate
// Package resample provides audio sample rate conversion.
//
// Some backends can only capture at the device's own rate. Their recordings
// are converted here before frame accounting, so callers always count frames
// in the rate they asked for.
//
// Example:
//
//	r := resample.New(48000, 44100, 2)
//	converted := r.Resample(chunk)
package resample
