// ABOUTME: Bubbletea model for the input level monitor
// ABOUTME: Shows per channel meters and passthrough volume
package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	meterWidth = 40
	// meters start at -60 dBFS
	floorDB = -60.0
)

// Model represents the TUI state
type Model struct {
	// Device
	device     string
	backend    string
	sampleRate int
	channels   int

	// Levels, linear 0..1
	peaks []float64
	rms   []float64
	held  []float64

	// Passthrough
	volume int
	muted  bool

	// Stats
	frames    int64
	underruns int64
	lastErr   string

	showDebug bool

	volumeCtrl *VolumeControl

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case LevelMsg:
		m.applyLevels(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderMeters())
	b.WriteString(m.renderControls())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	device := "No device"
	if m.device != "" {
		device = truncate(m.device, 44)
	}
	format := "-"
	if m.sampleRate > 0 {
		format = fmt.Sprintf("%dHz %s via %s", m.sampleRate, channelName(m.channels), m.backend)
	}

	return fmt.Sprintf(`┌─ Soundcard Monitor ────────────────────────────────────────┐
│ Input:  %-50s │
│ Format: %-50s │
├────────────────────────────────────────────────────────────┤
`, device, truncate(format, 50))
}

func (m Model) renderMeters() string {
	if len(m.peaks) == 0 {
		return "│ Waiting for audio...                                       │\n"
	}

	var b strings.Builder
	for c := range m.peaks {
		bar := renderBar(meterValue(m.peaks[c]), meterWidth, meterWidth)
		fmt.Fprintf(&b, "│ ch%-2d [%s] %6s dB   │\n", c, bar, formatDB(m.rms[c]))
	}
	return b.String()
}

func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	if m.volumeCtrl == nil {
		return "│                                                            │\n"
	}
	return fmt.Sprintf("│                                                            │\n"+
		"│ Passthrough: [%s] %3d%%%-8s%-15s │\n",
		renderBar(m.volume, 100, 10), m.volume, muteIcon, "")
}

func (m Model) renderDebug() string {
	var held strings.Builder
	for c, h := range m.held {
		if c > 0 {
			held.WriteString(" ")
		}
		held.WriteString(formatDB(h))
	}
	errText := m.lastErr
	if errText == "" {
		errText = "none"
	}
	return fmt.Sprintf(`├────────────────────────────────────────────────────────────┤
│ Frames: %-12d Underruns: %-25d │
│ Peak hold: %-47s │
│ Last error: %-46s │
`, m.frames, m.underruns, truncate(held.String(), 47), truncate(errText, 46))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  r:Reset peaks  d:Debug  q:Quit         │
└────────────────────────────────────────────────────────────┘
`
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		if m.volume < 100 {
			m.volume = min(m.volume+5, 100)
			m.sendVolume()
		}
	case "down":
		if m.volume > 0 {
			m.volume = max(m.volume-5, 0)
			m.sendVolume()
		}
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "r":
		for c := range m.held {
			m.held[c] = 0
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Device != "" {
		m.device = msg.Device
		m.backend = msg.Backend
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.Err != nil {
		m.lastErr = msg.Err.Error()
		return
	}
	m.frames = msg.Frames
	m.underruns = msg.Underruns
}

func (m *Model) applyLevels(msg LevelMsg) {
	if len(msg.Peaks) != len(m.held) {
		m.held = make([]float64, len(msg.Peaks))
	}
	m.peaks = msg.Peaks
	m.rms = msg.RMS
	for c, p := range msg.Peaks {
		if p > m.held[c] {
			m.held[c] = p
		}
	}
}

// StatusMsg updates device and stream state. Counters are applied unless
// the message carries an error.
type StatusMsg struct {
	Device     string
	Backend    string
	SampleRate int
	Channels   int
	Frames     int64
	Underruns  int64
	Err        error
}

// LevelMsg carries per channel levels for one block of audio
type LevelMsg struct {
	Peaks []float64
	RMS   []float64
}

// Levels measures peak and RMS of interleaved samples per channel
func Levels(samples []float32, channels int) LevelMsg {
	msg := LevelMsg{
		Peaks: make([]float64, channels),
		RMS:   make([]float64, channels),
	}
	if channels <= 0 {
		return msg
	}
	frames := len(samples) / channels
	if frames == 0 {
		return msg
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			s := math.Abs(float64(samples[f*channels+c]))
			if s > msg.Peaks[c] {
				msg.Peaks[c] = s
			}
			msg.RMS[c] += s * s
		}
	}
	for c := range msg.RMS {
		msg.RMS[c] = math.Sqrt(msg.RMS[c] / float64(frames))
	}
	return msg
}

// meterValue maps a linear level onto 0..meterWidth on a dB scale
func meterValue(level float64) int {
	if level <= 0 {
		return 0
	}
	db := 20 * math.Log10(level)
	if db <= floorDB {
		return 0
	}
	if db >= 0 {
		return meterWidth
	}
	return int((db - floorDB) / -floorDB * meterWidth)
}

func formatDB(level float64) string {
	if level <= 0 {
		return "-inf"
	}
	return fmt.Sprintf("%.1f", 20*math.Log10(level))
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
