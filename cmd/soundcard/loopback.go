// ABOUTME: loopback-test command
// ABOUTME: Plays a known signal and checks that a loopback device records it
package main

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/spf13/cobra"
)

const (
	signalFrames = 1024
	recordFrames = 10 * signalFrames
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback-test",
	Short: "Play a test signal and verify it through the speaker's loopback",
	Long: `Plays silence, then 1024 frames with +1 on channel 0 and -1 on channel 1,
then silence again, while recording 10240 frames from the loopback device of
the same speaker. The recording passes when channel 0 averages positive,
channel 1 averages negative and each holds at least 1024 samples beyond 0.5.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		speaker, err := s.speaker(device)
		if err != nil {
			return err
		}
		if speaker.Channels() < 2 {
			return fmt.Errorf("%v needs at least two channels", speaker)
		}
		monitor, err := s.GetMicrophone(speaker.Name(), true)
		if err != nil {
			return fmt.Errorf("no loopback device for %s: %w", speaker.Name(), err)
		}

		res, err := runLoopback(speaker, monitor, s.cfg.SampleRate, s.streamOptions())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res)
		if !res.Passed() {
			return errors.New("loopback test failed")
		}
		return nil
	},
}

func init() {
	loopbackCmd.Flags().StringP("device", "d", "", "Speaker ID or name (default speaker if empty)")
}

type loopbackResult struct {
	Mean  [2]float64
	Hits  [2]int
	Total int
}

func (r loopbackResult) Passed() bool {
	return r.Mean[0] > 0 && r.Mean[1] < 0 && r.Hits[0] >= signalFrames && r.Hits[1] >= signalFrames
}

func (r loopbackResult) String() string {
	verdict := "FAIL"
	if r.Passed() {
		verdict = "PASS"
	}
	return fmt.Sprintf("%s: %d frames, ch0 mean %+.4f (%d high), ch1 mean %+.4f (%d low)",
		verdict, r.Total, r.Mean[0], r.Hits[0], r.Mean[1], r.Hits[1])
}

func testSignal() audio.Buffer {
	buf := audio.NewBuffer(signalFrames, 2)
	for f := 0; f < signalFrames; f++ {
		buf.Samples[f*2] = 1
		buf.Samples[f*2+1] = -1
	}
	return buf
}

func runLoopback(speaker *soundcard.Speaker, monitor *soundcard.Microphone, rate int, opts []soundcard.StreamOption) (loopbackResult, error) {
	var res loopbackResult
	opts = append(opts[:len(opts):len(opts)], soundcard.WithChannels(2))

	recorder, err := monitor.Recorder(rate, opts...)
	if err != nil {
		return res, err
	}
	player, err := speaker.Player(rate, opts...)
	if err != nil {
		return res, errors.Join(err, recorder.Close())
	}

	silence := audio.NewBuffer(signalFrames, 2)
	for _, b := range []audio.Buffer{silence, testSignal(), silence} {
		if err := player.Play(b); err != nil {
			return res, errors.Join(err, player.Abandon(), recorder.Close())
		}
	}

	rec, err := recorder.Record(recordFrames)
	if err != nil {
		return res, errors.Join(err, player.Abandon(), recorder.Close())
	}
	if err := errors.Join(player.Close(), recorder.Close()); err != nil {
		return res, err
	}

	res.Total = rec.Frames()
	for c := 0; c < 2; c++ {
		var sum float64
		for _, v := range rec.Channel(c) {
			sum += float64(v)
			if (c == 0 && v > 0.5) || (c == 1 && v < -0.5) {
				res.Hits[c]++
			}
		}
		res.Mean[c] = sum / float64(res.Total)
	}
	return res, nil
}
