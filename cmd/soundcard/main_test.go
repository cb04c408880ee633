// ABOUTME: Tests for the command line tool
// ABOUTME: Runs commands against the virtual backend
package main

import (
	"bytes"
	"context"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/config"
	"github.com/Resonate-Protocol/soundcard-go/internal/ui"
	"github.com/Resonate-Protocol/soundcard-go/internal/version"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio/encode"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func virtualSession(t *testing.T) *session {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = "virtual"
	cfg.Virtual.TickMs = 5

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	s, err := openSession(cfg, logger)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	if !strings.Contains(out, version.Version) || !strings.Contains(out, version.Product) {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestListCommand(t *testing.T) {
	out := execute(t, "--backend", "virtual", "--log-level", "error", "list", "--loopback")

	for _, want := range []string{
		"Backend: virtual",
		"* Virtual Speaker 1",
		"* Virtual Tone Microphone",
		"Monitor of Virtual Speaker 1 (loopback)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestListWithoutLoopback(t *testing.T) {
	var out bytes.Buffer
	s := virtualSession(t)
	if err := printDevices(&out, s.Context, false); err != nil {
		t.Fatalf("printDevices failed: %v", err)
	}
	if strings.Contains(out.String(), "(loopback)") {
		t.Errorf("loopback devices should be hidden:\n%s", out.String())
	}
}

func TestLoopback(t *testing.T) {
	s := virtualSession(t)

	speaker, err := s.speaker("")
	if err != nil {
		t.Fatalf("no speaker: %v", err)
	}
	monitor, err := s.GetMicrophone(speaker.Name(), true)
	if err != nil {
		t.Fatalf("no monitor: %v", err)
	}

	res, err := runLoopback(speaker, monitor, 48000, s.streamOptions())
	if err != nil {
		t.Fatalf("loopback failed: %v", err)
	}
	if !res.Passed() {
		t.Errorf("expected pass, got %v", res)
	}
	if res.Total != recordFrames {
		t.Errorf("expected %d frames, got %d", recordFrames, res.Total)
	}
	if !strings.HasPrefix(res.String(), "PASS") {
		t.Errorf("unexpected summary %q", res.String())
	}
}

func TestLoopbackResultVerdict(t *testing.T) {
	tests := []struct {
		name string
		res  loopbackResult
		want bool
	}{
		{"pass", loopbackResult{Mean: [2]float64{0.1, -0.1}, Hits: [2]int{1024, 1024}}, true},
		{"swapped", loopbackResult{Mean: [2]float64{-0.1, 0.1}, Hits: [2]int{1024, 1024}}, false},
		{"too few", loopbackResult{Mean: [2]float64{0.1, -0.1}, Hits: [2]int{1024, 1000}}, false},
	}
	for _, tt := range tests {
		if got := tt.res.Passed(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSine(t *testing.T) {
	buf := sine(1000, 0.5, 48000, 4800)
	if buf.Channels != 1 || buf.Frames() != 4800 {
		t.Fatalf("unexpected shape: %d frames, %d channels", buf.Frames(), buf.Channels)
	}
	if buf.Samples[0] != 0 || buf.Samples[len(buf.Samples)-1] != 0 {
		t.Error("tone should fade in and out")
	}

	var peak float64
	for _, v := range buf.Samples {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak < 0.49 || peak > 0.5 {
		t.Errorf("expected peak near 0.5, got %v", peak)
	}
}

func TestRecordTo(t *testing.T) {
	s := virtualSession(t)

	mic, err := s.microphone("Tone", false)
	if err != nil {
		t.Fatalf("no microphone: %v", err)
	}
	recorder, err := mic.Recorder(16000)
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	enc, err := encode.NewWAV(f, 16000, recorder.Channels(), 16)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	frames, err := recordTo(context.Background(), recorder, enc, 4000)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if frames != 4000 {
		t.Errorf("expected 4000 frames, got %d", frames)
	}
	if err := recorder.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close failed: %v", err)
	}
	_ = f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer r.Close()
	dec, err := decode.NewWAV(r)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	buf, err := decode.ReadAll(dec)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if buf.Frames() != 4000 || dec.SampleRate() != 16000 {
		t.Errorf("expected 4000 frames at 16000 Hz, got %d at %d", buf.Frames(), dec.SampleRate())
	}
}

func TestRecordToCancelled(t *testing.T) {
	s := virtualSession(t)
	mic, err := s.DefaultMicrophone()
	if err != nil {
		t.Fatalf("no microphone: %v", err)
	}
	recorder, err := mic.Recorder(48000)
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}
	defer recorder.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	enc, err := encode.NewWAV(f, 48000, recorder.Channels(), 16)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frames, err := recordTo(ctx, recorder, enc, 0)
	if err != nil || frames != 0 {
		t.Errorf("cancelled recording should stop at once, got %d frames, err %v", frames, err)
	}
}

func TestPlayDecoded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	enc, err := encode.NewWAV(f, 24000, 1, 16)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	if err := enc.Encode(sine(440, 0.5, 24000, 6000)); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_ = f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	defer r.Close()
	dec, err := decode.NewWAV(r)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	s := virtualSession(t)
	speaker, err := s.DefaultSpeaker()
	if err != nil {
		t.Fatalf("no speaker: %v", err)
	}
	if err := playDecoded(speaker, dec, s.streamOptions()); err != nil {
		t.Errorf("playback failed: %v", err)
	}
}

func TestAwaitQuit(t *testing.T) {
	ctrl := ui.NewVolumeControl()
	ctrl.Quit <- ui.QuitMsg{}
	if !awaitQuit(context.Background(), ctrl.Quit) {
		t.Error("expected a user quit")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if awaitQuit(ctx, nil) {
		t.Error("cancelled context is not a user quit")
	}

	done := make(chan bool, 1)
	ctx, cancel = context.WithCancel(context.Background())
	go func() { done <- awaitQuit(ctx, nil) }()
	select {
	case <-done:
		t.Fatal("returned before anything happened")
	case <-time.After(10 * time.Millisecond):
	}
	cancel()
	if <-done {
		t.Error("cancelled context is not a user quit")
	}
}

func TestStopMetricsLogsShutdownFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})}
	go func() { _ = server.Serve(ln) }()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("scrape never reached the handler")
	}

	logger, hook := test.NewNullLogger()
	s := &session{logger: logger, server: server}
	s.stopMetrics(10 * time.Millisecond)
	close(release)

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "failed to stop metrics server" {
		t.Fatalf("expected a shutdown warning, got %+v", entry)
	}
	if _, ok := entry.Data[logrus.ErrorKey]; !ok {
		t.Error("warning should carry the shutdown error")
	}

	// a session without a server has nothing to stop
	hook.Reset()
	(&session{logger: logger}).stopMetrics(time.Millisecond)
	if len(hook.AllEntries()) != 0 {
		t.Errorf("expected no log entries, got %d", len(hook.AllEntries()))
	}
}
