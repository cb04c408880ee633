// ABOUTME: Test doubles for the bridge
// ABOUTME: A backend whose streams expose the installed handler to the test
package bridge

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
)

type fakeBackend struct {
	nativeRate int
	quirk      bool
	streams    []*fakeStream

	// handed to every stream the backend opens
	installErr error
	startErr   error
	disposeErr error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Enumerate(kind audio.Kind) ([]audio.Device, error) { return nil, nil }

func (b *fakeBackend) Default(kind audio.Kind) (audio.Device, error) {
	return audio.Device{}, &audio.NotFoundError{Identifier: "default"}
}

func (b *fakeBackend) OpenStream(p backend.StreamParams) (backend.Stream, error) {
	rate := p.SampleRate
	if p.Direction == audio.Microphone && b.nativeRate > 0 {
		rate = b.nativeRate
	}
	s := &fakeStream{
		params:     p,
		rate:       rate,
		quirk:      b.quirk,
		installErr: b.installErr,
		startErr:   b.startErr,
		disposeErr: b.disposeErr,
	}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) last() *fakeStream { return b.streams[len(b.streams)-1] }

type fakeStream struct {
	params   backend.StreamParams
	rate     int
	quirk    bool
	handler  backend.Handler
	started  bool
	disposed bool

	installErr error
	startErr   error
	disposeErr error
}

func (s *fakeStream) Channels() int   { return s.params.Channels }
func (s *fakeStream) Blocksize() int  { return s.params.Blocksize }
func (s *fakeStream) SampleRate() int { return s.rate }
func (s *fakeStream) Latency() time.Duration {
	return 10 * time.Millisecond
}
func (s *fakeStream) UnmappedMean() bool { return s.quirk }

func (s *fakeStream) InstallCallback(h backend.Handler) error {
	if s.installErr != nil {
		return s.installErr
	}
	s.handler = h
	return nil
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) StopAndDispose() error {
	s.disposed = true
	return s.disposeErr
}

// render pulls frames through the handler
func (s *fakeStream) render(frames int) []float32 {
	out := make([]float32, frames*s.params.Channels)
	for i := range out {
		out[i] = 99
	}
	s.handler.Render(out, frames)
	return out
}

// capture pushes frames of a running counter, one value per sample
func (s *fakeStream) capture(frames int, next *float32) {
	in := make([]float32, frames*s.params.Channels)
	for i := range in {
		in[i] = *next
		*next++
	}
	s.handler.Capture(in, frames)
}

type countingMetrics struct {
	mu       sync.Mutex
	opened   int
	closed   int
	played   int
	recorded int
	underrun int
}

func (m *countingMetrics) StreamOpened(string) { m.mu.Lock(); m.opened++; m.mu.Unlock() }
func (m *countingMetrics) StreamClosed(string) { m.mu.Lock(); m.closed++; m.mu.Unlock() }
func (m *countingMetrics) FramesPlayed(n int)  { m.mu.Lock(); m.played += n; m.mu.Unlock() }
func (m *countingMetrics) FramesRecorded(n int) {
	m.mu.Lock()
	m.recorded += n
	m.mu.Unlock()
}
func (m *countingMetrics) Underrun()              { m.mu.Lock(); m.underrun++; m.mu.Unlock() }
func (m *countingMetrics) QueueDepth(string, int) {}

func device(channels int) audio.Device {
	return audio.Device{ID: "fake", Name: "Fake Device", Channels: channels}
}
