// ABOUTME: tone command
// ABOUTME: Plays a sine wave on a speaker
package main

import (
	"math"
	"time"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Play a sine tone",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		freq, _ := cmd.Flags().GetFloat64("freq")
		amplitude, _ := cmd.Flags().GetFloat64("amplitude")
		duration, _ := cmd.Flags().GetDuration("duration")

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		speaker, err := s.speaker(device)
		if err != nil {
			return err
		}

		rate := s.cfg.SampleRate
		buf := sine(freq, amplitude, rate, int(duration.Seconds()*float64(rate)))
		s.logger.WithFields(logrus.Fields{
			"device":    speaker.Name(),
			"frequency": freq,
			"duration":  duration,
		}).Info("playing tone")

		// a mono buffer is broadcast to every speaker channel
		return speaker.Play(buf, rate, s.streamOptions()...)
	},
}

func init() {
	toneCmd.Flags().StringP("device", "d", "", "Speaker ID or name (default speaker if empty)")
	toneCmd.Flags().Float64("freq", 440, "Tone frequency in Hz")
	toneCmd.Flags().Float64("amplitude", 0.5, "Peak amplitude, 0 to 1")
	toneCmd.Flags().Duration("duration", 2*time.Second, "How long to play")
}

// sine generates a mono tone with a short fade at both ends to avoid clicks
func sine(freq, amplitude float64, rate, frames int) audio.Buffer {
	if frames < 1 {
		frames = 1
	}
	fade := min(rate/100, frames/2)
	samples := make([]float32, frames)
	for i := range samples {
		gain := amplitude
		if fade > 0 {
			switch {
			case i < fade:
				gain *= float64(i) / float64(fade)
			case i >= frames-fade:
				gain *= float64(frames-1-i) / float64(fade)
			}
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audio.Mono(samples)
}
