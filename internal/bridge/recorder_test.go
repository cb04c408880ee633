// ABOUTME: Tests for the recording bridge
// ABOUTME: Frame exactness, remainders, resampling and error hand-off
package bridge

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/channelmap"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

func openRecorder(t *testing.T, b *fakeBackend, cfg Config) *Recorder {
	t.Helper()
	r, err := OpenRecorder(b, cfg)
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}
	return r
}

func TestRecordFrameExact(t *testing.T) {
	b := &fakeBackend{}
	m := &countingMetrics{}
	r := openRecorder(t, b, Config{Device: device(2), SampleRate: 48000, Metrics: m})
	s := b.last()

	var counter float32
	for _, n := range []int{1, 7, 512, 100, 33, 480, 1024, 5} {
		s.capture(n, &counter)
	}

	var all []float32
	requests := []int{1, 5, 100, 1000, 3, 511, 2}
	total := 0
	for _, n := range requests {
		buf, err := r.Record(n)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Frames() != n || buf.Channels != 2 {
			t.Fatalf("expected %d frames of 2 channels, got %d of %d", n, buf.Frames(), buf.Channels)
		}
		all = append(all, buf.Samples...)
		total += n
	}

	// nothing lost or duplicated across boundaries
	for i, v := range all {
		if v != float32(i) {
			t.Fatalf("sample %d: expected %d, got %v", i, i, v)
		}
	}

	rest := r.Flush()
	if rest.Frames()+total > 2162 {
		t.Errorf("remainder too large: %d frames", rest.Frames())
	}
	if len(rest.Samples) > 0 && rest.Samples[0] != float32(len(all)) {
		t.Errorf("remainder should continue the sequence, starts at %v", rest.Samples[0])
	}
	if m.recorded != total {
		t.Errorf("expected %d recorded frames, got %d", total, m.recorded)
	}
}

func TestRecordRejectsNonPositive(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 48000})
	for _, n := range []int{0, -5} {
		if _, err := r.Record(n); !errors.Is(err, audio.ErrFormat) {
			t.Errorf("Record(%d): expected ErrFormat, got %v", n, err)
		}
	}
}

func TestRecordAvailableAndFlush(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 48000})
	s := b.last()

	var counter float32
	s.capture(10, &counter)
	s.capture(3, &counter)

	buf, err := r.Record(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Frames() != 4 {
		t.Fatalf("expected 4 frames, got %d", buf.Frames())
	}

	// pending 6 frames plus the next 3 frame chunk
	buf, err = r.RecordAvailable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Frames() != 9 || buf.Samples[0] != 4 || buf.Samples[8] != 12 {
		t.Errorf("unexpected data %v", buf.Samples)
	}

	s.capture(10, &counter)
	if _, err := r.Record(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushed := r.Flush()
	if flushed.Frames() != 8 || flushed.Samples[0] != 15 {
		t.Errorf("expected 8 pending frames starting at 15, got %v", flushed.Samples)
	}
	if again := r.Flush(); again.Frames() != 0 {
		t.Errorf("flush should clear the remainder, got %d frames", again.Frames())
	}
}

func TestRecordChannelMap(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(2), SampleRate: 48000, ChannelMap: []int{1, channelmap.Silence, 0}})
	s := b.last()
	if s.params.Channels != 2 {
		t.Fatalf("expected 2 physical channels, got %d", s.params.Channels)
	}

	var counter float32
	s.capture(2, &counter)
	buf, err := r.Record(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []float32{1, 0, 0, 3, 0, 2}
	for i := range expected {
		if buf.Samples[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, buf.Samples)
		}
	}
}

func TestRecordResamples(t *testing.T) {
	b := &fakeBackend{nativeRate: 48000}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 24000})
	s := b.last()
	if s.SampleRate() != 48000 {
		t.Fatalf("expected native rate 48000, got %d", s.SampleRate())
	}

	// constant input stays constant through linear interpolation
	for i := 0; i < 8; i++ {
		in := make([]float32, 300)
		for j := range in {
			in[j] = 0.5
		}
		s.handler.Capture(in, 300)
	}

	buf, err := r.Record(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Frames() != 1000 {
		t.Fatalf("expected 1000 frames, got %d", buf.Frames())
	}
	for i, v := range buf.Samples {
		if math.Abs(float64(v-0.5)) > 1e-6 {
			t.Fatalf("sample %d: expected 0.5, got %v", i, v)
		}
	}
}

func TestRecordSurfacesCallbackError(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 48000})

	boom := errors.New("overflow")
	done := make(chan error, 1)
	go func() {
		_, err := r.Record(10)
		done <- err
	}()

	b.last().handler.Fail(boom)
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("expected callback error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("record did not wake up on error")
	}
}

func TestRecorderCloseInterruptsRecord(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 48000})

	done := make(chan error, 1)
	go func() {
		_, err := r.Record(10)
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, audio.ErrState) {
			t.Errorf("expected ErrState, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("record did not return after close")
	}

	if _, err := r.RecordAvailable(); !errors.Is(err, audio.ErrState) {
		t.Errorf("expected ErrState after close, got %v", err)
	}
}

func TestRecorderCloseDropsRemainder(t *testing.T) {
	b := &fakeBackend{}
	r := openRecorder(t, b, Config{Device: device(1), SampleRate: 48000})

	var counter float32
	b.last().capture(100, &counter)
	if _, err := r.Record(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		read func() (audio.Buffer, error)
	}{
		{"Record within remainder", func() (audio.Buffer, error) { return r.Record(20) }},
		{"Record beyond remainder", func() (audio.Buffer, error) { return r.Record(500) }},
		{"RecordAvailable", r.RecordAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.read()
			if !errors.Is(err, audio.ErrState) {
				t.Errorf("expected ErrState, got %v", err)
			}
			if buf.Frames() != 0 {
				t.Errorf("expected no frames, got %d", buf.Frames())
			}
		})
	}

	if rest := r.Flush(); rest.Frames() != 0 {
		t.Errorf("expected empty flush after close, got %d frames", rest.Frames())
	}
}
