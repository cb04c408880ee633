// ABOUTME: Tests for the WAV decoder
// ABOUTME: Decodes files written with go-audio/wav directly
package decode

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_ = f.Close()
	return path
}

func open(t *testing.T, path string) *WAVDecoder {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	dec, err := NewWAV(f)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	return dec
}

func TestWAVDecodeChunks(t *testing.T) {
	data := make([]int, 10*2)
	for i := range data {
		data[i] = 32767
		if i%2 == 1 {
			data[i] = -32767
		}
	}
	dec := open(t, writeWAV(t, 22050, 2, data))

	if dec.SampleRate() != 22050 || dec.Channels() != 2 {
		t.Fatalf("unexpected format %d Hz %d ch", dec.SampleRate(), dec.Channels())
	}

	total := 0
	for {
		buf, err := dec.Decode(4)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if buf.Channels != 2 || buf.Frames() > 4 {
			t.Fatalf("unexpected chunk: %d frames, %d channels", buf.Frames(), buf.Channels)
		}
		for f := 0; f < buf.Frames(); f++ {
			if buf.Samples[f*2] != 1 || buf.Samples[f*2+1] != -1 {
				t.Fatalf("frame %d: got %v", total+f, buf.Samples[f*2:f*2+2])
			}
		}
		total += buf.Frames()
	}
	if total != 10 {
		t.Errorf("expected 10 frames, got %d", total)
	}
}

func TestWAVDecode16BitRange(t *testing.T) {
	data := []int{-32768, -32767, 0, 16384, 32767}
	dec := open(t, writeWAV(t, 8000, 1, data))

	buf, err := dec.Decode(len(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, v := range data {
		want := audio.SampleFromInt16(int16(v))
		if buf.Samples[i] != want {
			t.Errorf("sample %d: got %v, want %v", i, buf.Samples[i], want)
		}
		if buf.Samples[i] < -1 || buf.Samples[i] > 1 {
			t.Errorf("sample %d out of range: %v", i, buf.Samples[i])
		}
	}
	if buf.Samples[0] != -1 {
		t.Errorf("most negative sample should map to -1, got %v", buf.Samples[0])
	}
}

func TestWAVDecodeInvalid(t *testing.T) {
	if _, err := NewWAV(strings.NewReader("definitely not a wav file")); err == nil {
		t.Error("expected error for garbage input")
	}

	dec := open(t, writeWAV(t, 8000, 1, []int{1, 2, 3}))
	if _, err := dec.Decode(0); err == nil {
		t.Error("expected error for zero frames")
	}
}
