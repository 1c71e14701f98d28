package compass

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"bussola/internal/heading"
	"bussola/internal/sensors/qmc5883l"
)

// DefaultFailureThreshold is the number of consecutive empty cycles
// tolerated before the sensor is re-initialized.
const DefaultFailureThreshold = 20

// Sensor is what the acquisition loop drives. ReadSample reports ok=false
// with a nil error when no new data is ready; the loop is written against
// that non-blocking contract.
type Sensor interface {
	Init(ctx context.Context) error
	ReadSample(ctx context.Context) (qmc5883l.Sample, bool, error)
}

// Reading is one processed sample.
type Reading struct {
	Heading int
	Precise float64
	Raw     qmc5883l.Sample
	Filter  heading.FilterState
	At      time.Time
}

// Cycle describes the outcome of one Monitor.Step.
type Cycle struct {
	// HaveSample is set when the sensor delivered data this cycle.
	HaveSample bool
	Reading    Reading
	// Emit is set when Reading.Heading differs from the last emitted one.
	Emit bool
	// Recovered is set when this cycle re-initialized the sensor.
	Recovered bool
	// ReadErr is a bus or decode error, counted like an empty cycle.
	ReadErr error
}

// Monitor owns the per-process acquisition state: the estimator, the
// consecutive failure counter and the last emitted heading. It must only
// be driven from one goroutine.
type Monitor struct {
	sensor    Sensor
	est       *heading.Estimator
	threshold int
	clk       clock.Clock

	failures    int
	lastEmitted int
	haveEmitted bool
}

func NewMonitor(sensor Sensor, est *heading.Estimator, threshold int, clk clock.Clock) *Monitor {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{sensor: sensor, est: est, threshold: threshold, clk: clk}
}

func (m *Monitor) Failures() int { return m.failures }

// Step runs one sampling cycle. The returned error is non-nil only when
// ctx is done or re-initialization failed for good.
func (m *Monitor) Step(ctx context.Context) (Cycle, error) {
	s, ok, err := m.sensor.ReadSample(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Cycle{}, ctxErr
	}
	if err != nil || !ok {
		c := Cycle{ReadErr: err}
		m.failures++
		if m.failures > m.threshold {
			m.failures = 0
			c.Recovered = true
			if err := m.sensor.Init(ctx); err != nil {
				return c, err
			}
		}
		return c, nil
	}

	m.failures = 0
	h := m.est.Update(heading.Raw{X: s.X, Y: s.Y, Z: s.Z})
	c := Cycle{
		HaveSample: true,
		Reading: Reading{
			Heading: h.Degrees(),
			Precise: float64(h),
			Raw:     s,
			Filter:  m.est.State(),
			At:      m.clk.Now(),
		},
	}
	if !m.haveEmitted || c.Reading.Heading != m.lastEmitted {
		m.lastEmitted = c.Reading.Heading
		m.haveEmitted = true
		c.Emit = true
	}
	return c, nil
}
