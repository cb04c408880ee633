// ABOUTME: Virtual stream lifecycle
// ABOUTME: Asynchronous create and teardown completed by the loop goroutine
package virtual

import (
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/mainloop"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
)

type streamState int

const (
	streamCreating streamState = iota
	streamReady
	streamRunning
	streamTerminating
	streamTerminated
)

type stream struct {
	b         *Backend
	params    backend.StreamParams
	channels  int
	rate      int
	blocksize int

	state   streamState
	wait    int
	handler backend.Handler
	cycle   int
	buf     []float32

	speaker *speaker
	pending []float32
	phase   float64
}

func (s *stream) Channels() int   { return s.channels }
func (s *stream) Blocksize() int  { return s.blocksize }
func (s *stream) SampleRate() int { return s.rate }

// Latency is one block at the negotiated rate
func (s *stream) Latency() time.Duration {
	return time.Duration(s.blocksize) * time.Second / time.Duration(s.rate)
}

func (s *stream) UnmappedMean() bool { return s.b.cfg.UnmappedMean }

func (s *stream) InstallCallback(h backend.Handler) error {
	var err error
	s.b.loop.Call(func() {
		if s.state != streamReady {
			err = &audio.BackendError{Op: "install callback", Message: "stream is not ready"}
			return
		}
		s.handler = h
	})
	return err
}

func (s *stream) Start() error {
	var err error
	s.b.loop.Call(func() {
		switch {
		case s.b.closed:
			err = errClosed("start stream")
		case s.handler == nil:
			err = &audio.BackendError{Op: "start stream", Message: "no callback installed"}
		case s.state != streamReady:
			err = &audio.BackendError{Op: "start stream", Message: "stream is not ready"}
		default:
			s.state = streamRunning
		}
	})
	return err
}

// teardown completes once the loop has dropped the stream
type teardown struct{ s *stream }

func (t teardown) State() mainloop.OpState {
	if t.s.state == streamTerminated {
		return mainloop.OpDone
	}
	return mainloop.OpRunning
}

func (t teardown) Release() {
	t.s.handler = nil
	t.s.pending = nil
}

func (s *stream) StopAndDispose() error {
	closed := false
	s.b.loop.Call(func() { closed = s.b.closed })
	if closed {
		s.handler = nil
		return nil
	}

	s.b.loop.Block(func() mainloop.Operation {
		if s.state == streamTerminated {
			return nil
		}
		s.state = streamTerminating
		return teardown{s}
	})
	return nil
}

func (s *stream) nextBlock() int {
	sizes := s.b.cfg.BlockSizes
	if len(sizes) == 0 {
		return s.blocksize
	}
	n := sizes[s.cycle%len(sizes)]
	s.cycle++
	return n
}

func (s *stream) scratch(frames int) []float32 {
	n := frames * s.channels
	if cap(s.buf) < n {
		s.buf = make([]float32, n)
	}
	return s.buf[:n]
}
