package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesTransmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloontx_frames_transmitted_total",
			Help: "Frames handed to the signal generator, by kind.",
		},
		[]string{"kind"},
	)

	transmitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloontx_transmit_failures_total",
			Help: "Frames dropped after the retry budget was spent, by kind.",
		},
		[]string{"kind"},
	)

	images = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloontx_images_total",
			Help: "Images that left the pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balloontx_ticks_total",
		Help: "Scheduler ticks run.",
	})

	altitude = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balloontx_altitude_meters",
		Help: "Last barometric altitude.",
	})

	packetNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balloontx_packet_number",
		Help: "Current value of the over-the-air packet counter.",
	})
)

func init() {
	prometheus.MustRegister(framesTransmitted)
	prometheus.MustRegister(transmitFailures)
	prometheus.MustRegister(images)
	prometheus.MustRegister(ticks)
	prometheus.MustRegister(altitude)
	prometheus.MustRegister(packetNumber)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder is the scheduler's view of the collectors. The zero value is
// usable and records into the process-wide registry.
type Recorder struct{}

func (Recorder) FrameTransmitted(kind string) { framesTransmitted.WithLabelValues(kind).Inc() }
func (Recorder) TransmitFailed(kind string)   { transmitFailures.WithLabelValues(kind).Inc() }
func (Recorder) ImageFinished(outcome string) { images.WithLabelValues(outcome).Inc() }
func (Recorder) Tick()                        { ticks.Inc() }
func (Recorder) Altitude(m float64)           { altitude.Set(m) }
func (Recorder) PacketNumber(n uint32)        { packetNumber.Set(float64(n)) }
