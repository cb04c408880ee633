// ABOUTME: record command
// ABOUTME: Records a microphone or loopback device into a WAV file
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record to a WAV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		loopback, _ := cmd.Flags().GetBool("loopback")
		channels, _ := cmd.Flags().GetInt("channels")
		duration, _ := cmd.Flags().GetDuration("duration")
		bitDepth, _ := cmd.Flags().GetInt("bit-depth")
		output, _ := cmd.Flags().GetString("output")

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		mic, err := s.microphone(device, loopback)
		if err != nil {
			return err
		}

		var opts []soundcard.StreamOption
		if channels > 0 {
			opts = append(opts, soundcard.WithChannels(channels))
		}
		recorder, err := mic.Recorder(s.cfg.SampleRate, s.streamOptions(opts...)...)
		if err != nil {
			return err
		}

		f, err := os.Create(output)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create %s: %w", output, err), recorder.Close())
		}
		defer f.Close()

		enc, err := encode.NewWAV(f, s.cfg.SampleRate, recorder.Channels(), bitDepth)
		if err != nil {
			return errors.Join(err, recorder.Close())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s.logger.WithFields(logrus.Fields{
			"device":   mic.Name(),
			"output":   output,
			"duration": duration,
		}).Info("recording")

		frames, err := recordTo(ctx, recorder, enc, int(duration.Seconds()*float64(s.cfg.SampleRate)))
		err = errors.Join(err, recorder.Close(), enc.Close())
		s.logger.WithField("frames", frames).Info("recording finished")
		return err
	},
}

func init() {
	recordCmd.Flags().StringP("device", "d", "", "Microphone ID or name (default microphone if empty)")
	recordCmd.Flags().BoolP("loopback", "l", false, "Allow loopback devices when matching --device")
	recordCmd.Flags().Int("channels", 0, "Record only the first N channels (0 records all)")
	recordCmd.Flags().Duration("duration", 5*time.Second, "How long to record; 0 records until interrupted")
	recordCmd.Flags().Int("bit-depth", 16, "WAV bit depth (16 or 24)")
	recordCmd.Flags().StringP("output", "o", "recording.wav", "Output WAV file")
}

// recordTo copies total frames (or everything until ctx ends when total is
// zero) from the recorder into the encoder, a tenth of a second at a time
func recordTo(ctx context.Context, recorder *soundcard.Recorder, enc encode.Encoder, total int) (int, error) {
	chunk := max(recorder.SampleRate()/10, 1)
	written := 0
	for total <= 0 || written < total {
		if ctx.Err() != nil {
			break
		}
		n := chunk
		if total > 0 {
			n = min(chunk, total-written)
		}
		buf, err := recorder.Record(n)
		if err != nil {
			return written, err
		}
		if err := enc.Encode(buf); err != nil {
			return written, err
		}
		written += buf.Frames()
	}
	return written, nil
}
