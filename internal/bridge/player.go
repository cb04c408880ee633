// ABOUTME: Playback side of the bridge
// ABOUTME: Queues remapped chunks and feeds them to the render callback
package bridge

import (
	"fmt"

	"github.com/Resonate-Protocol/soundcard-go/pkg/audio"
	"github.com/Resonate-Protocol/soundcard-go/pkg/backend"
)

// Player plays buffers on a speaker
type Player struct {
	*stream

	// fed is set when the previous callback was filled entirely from the
	// queue; guarded by mu
	fed bool
}

// OpenPlayer negotiates and starts a playback stream
func OpenPlayer(b backend.Backend, cfg Config) (*Player, error) {
	s, err := newStream(cfg, audio.Speaker)
	if err != nil {
		return nil, err
	}
	p := &Player{stream: s}
	if err := s.open(b, cfg, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Render implements backend.Handler. It copies queued samples into out,
// splitting the front chunk when it is larger than needed, and fills the
// rest with silence. It never waits. Silence counts as an underrun only
// when queued data ran out, so an idle stream reports none.
func (p *Player) Render(out []float32, frames int) {
	p.mu.Lock()
	n := 0
	for n < len(out) && len(p.queue) > 0 {
		chunk := p.queue[0]
		c := copy(out[n:], chunk)
		n += c
		if c < len(chunk) {
			p.queue[0] = chunk[c:]
		} else {
			p.queue[0] = nil
			p.queue = p.queue[1:]
		}
	}
	depth := len(p.queue)
	if depth == 0 {
		p.cond.Broadcast()
	}
	// an underrun is the queue running dry during playback, not an idle
	// stream rendering silence
	underrun := n < len(out) && (n > 0 || p.fed)
	p.fed = n == len(out)
	p.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	if n > 0 {
		p.metrics.FramesPlayed(n / p.cmap.Physical())
	}
	if underrun {
		p.metrics.Underrun()
	}
	p.metrics.QueueDepth("playback", depth)
}

// Play clamps the buffer to [-1, 1], broadcasts mono data to every channel,
// remaps it to the hardware layout and queues it. It returns as soon as
// the data is queued.
func (p *Player) Play(buf audio.Buffer) error {
	data, err := p.prepare(buf)
	if err != nil {
		return err
	}

	physical := p.cmap.Physical()
	step := p.blocksize * physical
	var chunks [][]float32
	for start := 0; start < len(data); start += step {
		end := min(start+step, len(data))
		chunks = append(chunks, data[start:end])
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked("play"); err != nil {
		return err
	}
	p.queue = append(p.queue, chunks...)
	return nil
}

func (p *Player) prepare(buf audio.Buffer) ([]float32, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	logical := p.cmap.Logical()
	frames := buf.Frames()

	var data []float32
	switch {
	case buf.Channels == logical:
		data = make([]float32, len(buf.Samples))
		for i, v := range buf.Samples {
			data[i] = audio.Clamp(v)
		}
	case buf.Channels == 1:
		data = make([]float32, frames*logical)
		for f, v := range buf.Samples {
			v = audio.Clamp(v)
			row := data[f*logical : (f+1)*logical]
			for c := range row {
				row[c] = v
			}
		}
	default:
		return nil, audio.NewFormatError(fmt.Sprintf("buffer has %d channels, stream has %d", buf.Channels, logical))
	}

	return p.cmap.Scatter(data, p.mode), nil
}

// Wait blocks until every queued chunk has been handed to the backend
func (p *Player) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 && p.err == nil && p.state == audio.StateRunning {
		p.cond.Wait()
	}
	return p.checkLocked("wait")
}

// Queued returns the number of frames not yet rendered
func (p *Player) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	samples := 0
	for _, c := range p.queue {
		samples += len(c)
	}
	return samples / p.cmap.Physical()
}

// Close plays out the queue, then tears the stream down
func (p *Player) Close() error {
	return p.close(true)
}

// Abandon tears the stream down without playing out the queue
func (p *Player) Abandon() error {
	return p.close(false)
}
