// Package soundcard plays and records audio through the system's sound
// devices with a blocking, frame-accurate API.
//
// A Context binds one native backend. Devices are looked up by ID or name
// and stream from there:
//
//	ctx, err := soundcard.New(soundcard.Options{})
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
//
//	mic, err := ctx.DefaultMicrophone()
//	if err != nil {
//		return err
//	}
//	buf, err := mic.Record(48000, 48000, soundcard.WithChannels(1))
//
// Samples are interleaved float32 in [-1, 1]. Channel maps select and
// reorder hardware channels; index -1 is a silent channel.
package soundcard
