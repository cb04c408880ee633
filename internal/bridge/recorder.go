// ABOUTME: Recording side of the bridge
// ABOUTME: Collects captured chunks and serves frame-exact reads
package bridge

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio/resample"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
)

// Recorder records from a microphone. Reads are serialized; Close may be
// called from another goroutine to interrupt a waiting read.
type Recorder struct {
	*stream

	// guards pending and the resampler
	readMu    sync.Mutex
	pending   []float32
	resampler *resample.Resampler
}

// OpenRecorder negotiates and starts a capture stream. When the backend
// settles on a different rate, captured chunks are resampled to the
// requested one.
func OpenRecorder(b backend.Backend, cfg Config) (*Recorder, error) {
	s, err := newStream(cfg, audio.Microphone)
	if err != nil {
		return nil, err
	}
	r := &Recorder{stream: s}
	if err := s.open(b, cfg, r); err != nil {
		return nil, err
	}
	if native := s.native.SampleRate(); native != cfg.SampleRate {
		r.resampler = resample.New(native, cfg.SampleRate, s.cmap.Physical())
		s.logger.WithField("native", native).Debug("resampling capture")
	}
	return r, nil
}

// Capture implements backend.Handler. The samples are copied and queued.
func (r *Recorder) Capture(in []float32, frames int) {
	chunk := make([]float32, len(in))
	copy(chunk, in)

	r.mu.Lock()
	r.queue = append(r.queue, chunk)
	depth := len(r.queue)
	r.cond.Signal()
	r.mu.Unlock()

	r.metrics.QueueDepth("record", depth)
}

// recordChunk waits for the next captured chunk and returns it resampled
// and in the logical channel layout
func (r *Recorder) recordChunk() ([]float32, error) {
	r.mu.Lock()
	for len(r.queue) == 0 && r.err == nil && r.state == audio.StateRunning {
		r.cond.Wait()
	}
	if err := r.checkLocked("record"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	chunk := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	r.mu.Unlock()

	if r.resampler != nil {
		chunk = r.resampler.Resample(chunk)
	}
	return r.cmap.Gather(chunk), nil
}

// Record returns exactly frames frames. Whatever the last chunk holds
// beyond that is kept for the next call.
func (r *Recorder) Record(frames int) (audio.Buffer, error) {
	if frames <= 0 {
		return audio.Buffer{}, audio.NewFormatError(fmt.Sprintf("frame count must be positive, not %d", frames))
	}
	r.readMu.Lock()
	defer r.readMu.Unlock()
	if err := r.requireRunning("record"); err != nil {
		return audio.Buffer{}, err
	}

	logical := r.cmap.Logical()
	want := frames * logical
	out := make([]float32, 0, want)
	out = append(out, r.pending...)
	r.pending = nil

	for len(out) < want {
		chunk, err := r.recordChunk()
		if err != nil {
			r.pending = out
			return audio.Buffer{}, err
		}
		out = append(out, chunk...)
	}

	if len(out) > want {
		r.pending = append([]float32(nil), out[want:]...)
		out = out[:want]
	}
	r.metrics.FramesRecorded(frames)
	return audio.Buffer{Samples: out, Channels: logical}, nil
}

// RecordAvailable returns the pending remainder plus the next captured
// chunk, however many frames that is
func (r *Recorder) RecordAvailable() (audio.Buffer, error) {
	r.readMu.Lock()
	defer r.readMu.Unlock()
	if err := r.requireRunning("record"); err != nil {
		return audio.Buffer{}, err
	}

	chunk, err := r.recordChunk()
	if err != nil {
		return audio.Buffer{}, err
	}
	out := append(r.pending, chunk...)
	r.pending = nil

	logical := r.cmap.Logical()
	r.metrics.FramesRecorded(len(out) / logical)
	return audio.Buffer{Samples: out, Channels: logical}, nil
}

// requireRunning fails once the stream has left the running state, so
// leftovers of a closed stream are never served
func (r *Recorder) requireRunning(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != audio.StateRunning {
		return &audio.StateError{Op: op, State: r.state}
	}
	return nil
}

// Flush returns the pending remainder without waiting and forgets it.
// After Close it is always empty.
func (r *Recorder) Flush() audio.Buffer {
	r.readMu.Lock()
	defer r.readMu.Unlock()

	out := r.pending
	r.pending = nil
	if out == nil {
		out = []float32{}
	}
	return audio.Buffer{Samples: out, Channels: r.cmap.Logical()}
}

// Close stops capturing and discards anything not yet read
func (r *Recorder) Close() error {
	err := r.close(false)

	// a read interrupted by close stashes its partial data before returning
	r.readMu.Lock()
	r.pending = nil
	r.readMu.Unlock()
	return err
}
