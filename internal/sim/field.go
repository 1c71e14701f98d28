package sim

import (
	"math"
	"time"

	"bussola/internal/heading"
)

// FieldSim models the earth field seen by a magnetometer on a slowly
// turning vessel. The horizontal plane is the sensor's X-Z plane.
type FieldSim struct {
	// Amplitude is the horizontal field strength in sensor counts.
	Amplitude float64
	// Period is the time for one full turn. Zero or negative holds the
	// heading at StartDeg.
	Period   time.Duration
	StartDeg float64
	// HardIron is added to every axis, the way a local magnetic bias would.
	HardIron heading.Offsets
	Epoch    time.Time
}

// Heading returns the true magnetic heading in [0, 360) at now.
func (s FieldSim) Heading(now time.Time) float64 {
	deg := s.StartDeg
	if s.Period > 0 {
		elapsed := now.Sub(s.Epoch)
		phase := float64(elapsed%s.Period) / float64(s.Period)
		deg += 360 * phase
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Field returns raw axis counts at now.
func (s FieldSim) Field(now time.Time) (x, y, z int16) {
	amp := s.Amplitude
	if amp <= 0 {
		amp = 1500
	}
	rad := s.Heading(now) * math.Pi / 180
	x = clamp16(float64(s.HardIron.X) + amp*math.Sin(rad))
	y = clamp16(float64(s.HardIron.Y))
	z = clamp16(float64(s.HardIron.Z) + amp*math.Cos(rad))
	return x, y, z
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
