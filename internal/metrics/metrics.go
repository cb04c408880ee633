// ABOUTME: Prometheus metrics for audio streams
// ABOUTME: Counts frames, underruns and open streams per direction
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soundcard"

// Collector implements the stream metrics hooks on its own registry, so
// several contexts in one process (and tests) never collide.
type Collector struct {
	registry *prometheus.Registry

	openStreams  *prometheus.GaugeVec
	streamsTotal *prometheus.CounterVec
	frames       *prometheus.CounterVec
	underruns    prometheus.Counter
	queuedChunks *prometheus.GaugeVec
}

// New creates a collector with Go runtime metrics included
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		openStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "open",
			Help:      "Currently open streams",
		}, []string{"direction"}),
		streamsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "opened_total",
			Help:      "Streams opened since start",
		}, []string{"direction"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames exchanged with the backend",
		}, []string{"direction"}),
		underruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "underruns_total",
			Help:      "Render callbacks that ran out of queued audio",
		}),
		queuedChunks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "queued_chunks",
			Help:      "Chunks waiting between the application and the backend",
		}, []string{"direction"}),
	}
}

func (c *Collector) StreamOpened(direction string) {
	c.openStreams.WithLabelValues(direction).Inc()
	c.streamsTotal.WithLabelValues(direction).Inc()
}

func (c *Collector) StreamClosed(direction string) {
	c.openStreams.WithLabelValues(direction).Dec()
}

func (c *Collector) FramesPlayed(n int) {
	c.frames.WithLabelValues("playback").Add(float64(n))
}

func (c *Collector) FramesRecorded(n int) {
	c.frames.WithLabelValues("record").Add(float64(n))
}

func (c *Collector) Underrun() {
	c.underruns.Inc()
}

func (c *Collector) QueueDepth(direction string, chunks int) {
	c.queuedChunks.WithLabelValues(direction).Set(float64(chunks))
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
