// Package metrics exports the compass snapshot to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bussola/internal/compass"
)

const (
	namespace = "sensors"
	subsystem = "qmc5883l"
)

// Source returns the current compass state. It is called on every scrape.
type Source func() compass.Snapshot

// Register adds the compass collectors to reg.
func Register(reg prometheus.Registerer, src Source) {
	f := promauto.With(reg)

	gauge := func(name, help string, labels prometheus.Labels, fn func(compass.Snapshot) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return fn(src()) })
	}
	counter := func(name, help string, fn func(compass.Snapshot) uint64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn(src())) })
	}

	gauge("heading_degrees", "Filtered magnetic heading.", nil, func(s compass.Snapshot) float64 { return s.HeadingPrecise })
	gauge("heading_valid", "1 when the heading is fresh.", nil, func(s compass.Snapshot) float64 { return b2f(s.Valid) })
	gauge("magnetic_field", "Last raw axis reading in counts.", prometheus.Labels{"axis": "x"}, func(s compass.Snapshot) float64 { return float64(s.RawX) })
	gauge("magnetic_field", "Last raw axis reading in counts.", prometheus.Labels{"axis": "y"}, func(s compass.Snapshot) float64 { return float64(s.RawY) })
	gauge("magnetic_field", "Last raw axis reading in counts.", prometheus.Labels{"axis": "z"}, func(s compass.Snapshot) float64 { return float64(s.RawZ) })
	gauge("temperature_celsius", "Uncalibrated die temperature.", nil, func(s compass.Snapshot) float64 { return s.TempC })
	gauge("consecutive_failures", "Empty cycles since the last sample.", nil, func(s compass.Snapshot) float64 { return float64(s.ConsecutiveFailures) })
	gauge("failed", "1 when the sensor gave up.", nil, func(s compass.Snapshot) float64 { return b2f(s.Failed) })

	counter("samples_total", "Samples read.", func(s compass.Snapshot) uint64 { return s.Samples })
	counter("empty_cycles_total", "Cycles without new data.", func(s compass.Snapshot) uint64 { return s.EmptyCycles })
	counter("read_errors_total", "Cycles that failed on the bus.", func(s compass.Snapshot) uint64 { return s.ReadErrors })
	counter("overflows_total", "Samples flagged as overflowed.", func(s compass.Snapshot) uint64 { return s.Overflows })
	counter("recoveries_total", "Re-initializations after silence.", func(s compass.Snapshot) uint64 { return s.Recoveries })
	counter("emitted_total", "Heading changes emitted.", func(s compass.Snapshot) uint64 { return s.Emitted })
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
