// ABOUTME: play command
// ABOUTME: Streams a WAV file to a speaker
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play FILE.wav",
	Short: "Play a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		dec, err := decode.NewWAV(f)
		if err != nil {
			return err
		}

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		speaker, err := s.speaker(device)
		if err != nil {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"file":       args[0],
			"device":     speaker.Name(),
			"samplerate": dec.SampleRate(),
			"channels":   dec.Channels(),
		}).Info("playing file")
		return playDecoded(speaker, dec, s.streamOptions())
	},
}

func init() {
	playCmd.Flags().StringP("device", "d", "", "Speaker ID or name (default speaker if empty)")
}

// playDecoded streams a decoder to the speaker at the file's own rate
func playDecoded(speaker *soundcard.Speaker, dec decode.Decoder, opts []soundcard.StreamOption) error {
	// mono files are broadcast; anything wider maps onto the first channels
	if dec.Channels() > 1 {
		opts = append(opts, soundcard.WithChannels(dec.Channels()))
	}
	player, err := speaker.Player(dec.SampleRate(), opts...)
	if err != nil {
		return err
	}

	chunk := dec.SampleRate() / 10
	for {
		buf, err := dec.Decode(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Join(err, player.Abandon())
		}
		if err := player.Play(buf); err != nil {
			return errors.Join(err, player.Abandon())
		}
		// keep about a second queued instead of the whole file
		for player.Queued() > dec.SampleRate() && player.State() == audio.StateRunning {
			time.Sleep(20 * time.Millisecond)
		}
	}
	return player.Close()
}
