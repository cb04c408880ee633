// ABOUTME: Logical to physical channel mapping
// ABOUTME: Gathers recorded channels and scatters played channels, with silence slots
package channelmap

import (
	"fmt"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
)

// Silence marks a logical channel that is never connected to hardware
const Silence = -1

// UnmappedMode decides what physical channels without a logical source play
type UnmappedMode int

const (
	// UnmappedSilence fills unmapped physical channels with zeros
	UnmappedSilence UnmappedMode = iota
	// UnmappedMean fills them with the mean of the mapped logical channels.
	// Only some backends behave this way.
	UnmappedMean
)

// Map assigns each logical channel a physical channel index or Silence
type Map struct {
	logical  []int
	physical int
	// source[p] is the logical channel feeding physical channel p, or Silence
	source []int
}

// Identity maps channels 0..n-1 onto themselves
func Identity(n int) (*Map, error) {
	if n <= 0 {
		return nil, audio.NewFormatError(fmt.Sprintf("channel count must be positive, not %d", n))
	}
	logical := make([]int, n)
	for i := range logical {
		logical[i] = i
	}
	return build(logical, n, true)
}

// New validates an explicit recording channel list against the number of
// physical channels the device declares. The stream needs max(list)+1
// physical channels, at least one. A physical channel may be read by more
// than one logical channel.
func New(list []int, declaredPhysical int) (*Map, error) {
	return parse(list, declaredPhysical, false)
}

// NewPlayback is New for the playback direction, where the map must be
// invertible: no physical channel may be fed by two logical channels.
func NewPlayback(list []int, declaredPhysical int) (*Map, error) {
	return parse(list, declaredPhysical, true)
}

func parse(list []int, declaredPhysical int, invertible bool) (*Map, error) {
	if len(list) == 0 {
		return nil, audio.NewFormatError("channel map is empty")
	}
	physical := 1
	for _, ch := range list {
		if ch < Silence || (declaredPhysical > 0 && ch >= declaredPhysical) {
			return nil, audio.NewFormatError(fmt.Sprintf("channel %d outside [-1, %d)", ch, declaredPhysical))
		}
		if ch+1 > physical {
			physical = ch + 1
		}
	}
	return build(append([]int(nil), list...), physical, invertible)
}

func build(logical []int, physical int, invertible bool) (*Map, error) {
	source := make([]int, physical)
	for p := range source {
		source[p] = Silence
	}
	for l, p := range logical {
		if p == Silence {
			continue
		}
		if source[p] != Silence {
			if !invertible {
				continue
			}
			return nil, audio.NewFormatError(fmt.Sprintf("physical channel %d mapped twice (logical %d and %d)", p, source[p], l))
		}
		source[p] = l
	}
	return &Map{logical: logical, physical: physical, source: source}, nil
}

// Logical returns the number of channels the application works with
func (m *Map) Logical() int { return len(m.logical) }

// Physical returns the number of channels the hardware stream carries
func (m *Map) Physical() int { return m.physical }

// Channels returns a copy of the logical to physical list
func (m *Map) Channels() []int { return append([]int(nil), m.logical...) }

// Source returns the inverted playback map: one entry per physical channel
// in ascending order, holding the feeding logical channel or Silence
func (m *Map) Source() []int { return append([]int(nil), m.source...) }

// IsIdentity reports whether gather and scatter would copy samples unchanged
func (m *Map) IsIdentity() bool {
	if len(m.logical) != m.physical {
		return false
	}
	for i, p := range m.logical {
		if p != i {
			return false
		}
	}
	return true
}

// Gather converts physical interleaved samples into logical ones. Silence
// channels come out as zeros.
func (m *Map) Gather(physical []float32) []float32 {
	if m.IsIdentity() {
		return physical
	}
	frames := len(physical) / m.physical
	nl := len(m.logical)
	out := make([]float32, frames*nl)
	for f := 0; f < frames; f++ {
		in := physical[f*m.physical : (f+1)*m.physical]
		row := out[f*nl : (f+1)*nl]
		for l, p := range m.logical {
			if p != Silence {
				row[l] = in[p]
			}
		}
	}
	return out
}

// Scatter converts logical interleaved samples into the physical layout the
// hardware expects. Logical channels mapped to Silence are dropped.
func (m *Map) Scatter(logical []float32, mode UnmappedMode) []float32 {
	if m.IsIdentity() {
		return logical
	}
	nl := len(m.logical)
	frames := len(logical) / nl

	mapped := 0
	for _, p := range m.logical {
		if p != Silence {
			mapped++
		}
	}

	out := make([]float32, frames*m.physical)
	for f := 0; f < frames; f++ {
		in := logical[f*nl : (f+1)*nl]
		row := out[f*m.physical : (f+1)*m.physical]

		var mean float32
		if mode == UnmappedMean && mapped > 0 {
			for l, p := range m.logical {
				if p != Silence {
					mean += in[l]
				}
			}
			mean /= float32(mapped)
		}

		for p, l := range m.source {
			switch {
			case l != Silence:
				row[p] = in[l]
			case mode == UnmappedMean:
				row[p] = mean
			}
		}
	}
	return out
}

func (m *Map) String() string {
	return fmt.Sprintf("channelmap%v->%d", m.logical, m.physical)
}
