// ABOUTME: monitor command
// ABOUTME: Live input level meter with optional passthrough to a speaker
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/internal/ui"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show live input levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		loopback, _ := cmd.Flags().GetBool("loopback")
		passthrough, _ := cmd.Flags().GetString("passthrough")
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		mic, err := s.microphone(device, loopback)
		if err != nil {
			return err
		}
		recorder, err := mic.Recorder(s.cfg.SampleRate, s.streamOptions()...)
		if err != nil {
			return err
		}

		var player *soundcard.Player
		var volCtrl *ui.VolumeControl
		if passthrough != "" {
			speaker, err := s.speaker(passthrough)
			if err != nil {
				return errors.Join(err, recorder.Close())
			}
			player, err = speaker.Player(s.cfg.SampleRate, s.streamOptions(soundcard.WithChannels(recorder.Channels()))...)
			if err != nil {
				return errors.Join(err, recorder.Close())
			}
			volCtrl = ui.NewVolumeControl()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := &monitor{
			session:  s,
			device:   mic.Name(),
			recorder: recorder,
			player:   player,
			volCtrl:  volCtrl,
			gain:     1,
		}

		if noTUI {
			err = m.run(ctx, m.logLevels)
		} else {
			err = m.runTUI(ctx)
		}

		if player != nil {
			err = errors.Join(err, player.Abandon())
		}
		return errors.Join(err, recorder.Close())
	},
}

func init() {
	monitorCmd.Flags().StringP("device", "d", "", "Microphone ID or name (default microphone if empty)")
	monitorCmd.Flags().BoolP("loopback", "l", false, "Allow loopback devices when matching --device")
	monitorCmd.Flags().String("passthrough", "", "Also play the input on this speaker")
	monitorCmd.Flags().Bool("no-tui", false, "Log levels instead of drawing meters")
}

type monitor struct {
	session  *session
	device   string
	recorder *soundcard.Recorder
	player   *soundcard.Player
	volCtrl  *ui.VolumeControl
	gain     float32

	// only touched by the goroutine in run
	frames    int64
	underruns int64
	lastLog   time.Time
}

// run reads blocks until ctx ends or the stream fails, handing each block
// to report
func (m *monitor) run(ctx context.Context, report func(audio.Buffer)) error {
	done := make(chan error, 1)
	go func() {
		for {
			buf, err := m.recorder.RecordAvailable()
			if err != nil {
				done <- err
				return
			}
			m.frames += int64(buf.Frames())
			if m.player != nil {
				if m.frames > int64(buf.Frames()) && m.player.Queued() == 0 {
					m.underruns++
				}
				if err := m.player.Play(m.scaled(buf)); err != nil {
					done <- err
					return
				}
			}
			report(buf)
			if ctx.Err() != nil {
				done <- nil
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Close on the recorder wakes RecordAvailable
		return nil
	}
}

func (m *monitor) scaled(buf audio.Buffer) audio.Buffer {
	if m.volCtrl != nil {
		select {
		case change := <-m.volCtrl.Changes:
			m.gain = float32(change.Volume) / 100
			if change.Muted {
				m.gain = 0
			}
		default:
		}
	}
	if m.gain == 1 {
		return buf
	}
	out := audio.Buffer{Samples: make([]float32, len(buf.Samples)), Channels: buf.Channels}
	for i, v := range buf.Samples {
		out.Samples[i] = v * m.gain
	}
	return out
}

func (m *monitor) logLevels(buf audio.Buffer) {
	if time.Since(m.lastLog) < time.Second {
		return
	}
	m.lastLog = time.Now()
	levels := ui.Levels(buf.Samples, buf.Channels)
	m.session.logger.WithFields(logrus.Fields{
		"device":    m.device,
		"frames":    m.frames,
		"underruns": m.underruns,
		"peak":      levels.Peaks,
		"rms":       levels.RMS,
	}).Info("levels")
}

func (m *monitor) runTUI(ctx context.Context) error {
	prog, err := ui.Run(m.volCtrl)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog.Send(ui.StatusMsg{
		Device:     m.device,
		Backend:    m.session.Backend(),
		SampleRate: m.recorder.SampleRate(),
		Channels:   m.recorder.Channels(),
	})

	// meters refresh at most every 50ms
	var last time.Time
	report := func(buf audio.Buffer) {
		if time.Since(last) < 50*time.Millisecond {
			return
		}
		last = time.Now()
		prog.Send(ui.Levels(buf.Samples, buf.Channels))
		prog.Send(ui.StatusMsg{Frames: m.frames, Underruns: m.underruns})
	}

	runErr := make(chan error, 1)
	go func() {
		err := m.run(ctx, report)
		if err != nil {
			prog.Send(ui.StatusMsg{Err: err})
		}
		runErr <- err
	}()

	var quit chan ui.QuitMsg
	if m.volCtrl != nil {
		quit = m.volCtrl.Quit
	}
	go func() {
		if awaitQuit(ctx, quit) {
			m.session.logger.Debug("quit requested from the monitor")
			cancel()
		}
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		return err
	}
	cancel()
	return <-runErr
}

// awaitQuit blocks until ctx ends or the user quits from the TUI and
// reports whether it was the user. A nil quit channel never fires.
func awaitQuit(ctx context.Context, quit <-chan ui.QuitMsg) bool {
	select {
	case <-ctx.Done():
		return false
	case <-quit:
		return true
	}
}
