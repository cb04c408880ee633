// ABOUTME: Streaming linear resampler for converting capture sample rates
// ABOUTME: Drains each input chunk through a fixed 512-frame working block
package resample

// DefaultBlockSize is the working block of the converter, in frames
const DefaultBlockSize = 512

// Resampler converts interleaved float32 audio from one sample rate to
// another. Interpolation history is carried between calls, so a stream
// split into arbitrary chunks resamples the same as one long chunk.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64 // input frames advanced per output frame
	blockSize  int

	// todo holds input not yet handed to the converter
	todo []float32
	// window holds input frames already handed to the converter;
	// window[0] is the frame at integer position 0
	window   []float32
	position float64

	outBlock []float32
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		blockSize:  DefaultBlockSize,
		outBlock:   make([]float32, DefaultBlockSize*channels),
	}
}

// InputRate returns the rate samples are expected in
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the rate samples are produced at
func (r *Resampler) OutputRate() int { return r.outputRate }

// Resample converts a whole chunk and returns the converted samples.
// With equal rates the input slice is returned unchanged.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.inputRate == r.outputRate {
		return input
	}

	r.todo = append(r.todo, input...)

	var output []float32
	for {
		frames := r.convert(r.outBlock)
		output = append(output, r.outBlock[:frames*r.channels]...)

		// A short block means the converter ran out of source data
		if frames < r.blockSize {
			break
		}
	}
	return output
}

// convert fills dst with up to one block of output frames and returns the
// number of frames written. Fewer than a block means input is exhausted.
func (r *Resampler) convert(dst []float32) int {
	ch := r.channels
	outFrames := 0

	for outFrames < r.blockSize {
		idx := int(r.position)

		// Linear interpolation needs frames idx and idx+1
		for idx+1 >= len(r.window)/ch {
			if !r.supply() {
				r.compact()
				return outFrames
			}
		}

		frac := float32(r.position - float64(idx))
		a := r.window[idx*ch : idx*ch+ch]
		b := r.window[(idx+1)*ch : (idx+1)*ch+ch]
		out := dst[outFrames*ch : outFrames*ch+ch]
		for c := 0; c < ch; c++ {
			out[c] = a[c] + (b[c]-a[c])*frac
		}

		outFrames++
		r.position += r.ratio
	}

	r.compact()
	return outFrames
}

// supply moves up to one block of pending input into the window
func (r *Resampler) supply() bool {
	pending := len(r.todo) / r.channels
	if pending == 0 {
		return false
	}
	n := min(pending, r.blockSize) * r.channels
	r.window = append(r.window, r.todo[:n]...)
	r.todo = r.todo[n:]
	if len(r.todo) == 0 {
		r.todo = nil
	}
	return true
}

// compact drops window frames that no future output can reference
func (r *Resampler) compact() {
	drop := int(r.position)
	frames := len(r.window) / r.channels
	if drop > frames {
		drop = frames
	}
	if drop == 0 {
		return
	}
	r.window = append(r.window[:0], r.window[drop*r.channels:]...)
	r.position -= float64(drop)
}

// Reset discards carried history and pending input
func (r *Resampler) Reset() {
	r.todo = nil
	r.window = r.window[:0]
	r.position = 0
}
