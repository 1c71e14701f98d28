package heading

import (
	"fmt"
	"math"
)

// DefaultAlpha is the smoothing factor: roughly a 100-sample time constant.
const DefaultAlpha = 0.01

// Offsets are fixed hard-iron corrections in sensor counts.
type Offsets struct {
	X, Y, Z int
}

var DefaultOffsets = Offsets{X: 400, Y: 66, Z: 100}

// Raw is one uncorrected sample in sensor counts.
type Raw struct {
	X, Y, Z int16
}

// Corrected is a sample with hard-iron offsets removed. It is wider than
// Raw so the subtraction cannot wrap.
type Corrected struct {
	X, Y, Z int32
}

func (o Offsets) Apply(r Raw) Corrected {
	return Corrected{
		X: int32(r.X) - int32(o.X),
		Y: int32(r.Y) - int32(o.Y),
		Z: int32(r.Z) - int32(o.Z),
	}
}

// FilterState holds the smoothed horizontal components. The sensor is
// mounted so the horizontal plane is its X-Z plane.
type FilterState struct {
	X, Z        float64
	Initialized bool
}

// Heading is a bearing in degrees in [0, 360).
type Heading float64

// Degrees truncates to whole degrees in [0, 360).
func (h Heading) Degrees() int {
	d := int(h)
	if d >= 360 || d < 0 {
		d = ((d % 360) + 360) % 360
	}
	return d
}

// Estimator turns raw samples into a smoothed heading. It is not safe for
// concurrent use.
type Estimator struct {
	offsets Offsets
	alpha   float64
	state   FilterState
}

func New(offsets Offsets, alpha float64) (*Estimator, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("heading: alpha=%v must be in (0,1]", alpha)
	}
	return &Estimator{offsets: offsets, alpha: alpha}, nil
}

// Update folds r into the filter and returns the resulting heading. The
// first sample seeds the filter without smoothing.
func (e *Estimator) Update(r Raw) Heading {
	c := e.offsets.Apply(r)
	cx, cz := float64(c.X), float64(c.Z)
	if !e.state.Initialized {
		e.state = FilterState{X: cx, Z: cz, Initialized: true}
	} else {
		e.state.X += e.alpha * (cx - e.state.X)
		e.state.Z += e.alpha * (cz - e.state.Z)
	}
	return Compute(e.state.X, e.state.Z)
}

func (e *Estimator) State() FilterState { return e.state }

// SetState replaces the filter state, e.g. to resume from a known value.
func (e *Estimator) SetState(s FilterState) { e.state = s }

// Reset drops the filter state so the next sample seeds it again.
func (e *Estimator) Reset() { e.state = FilterState{} }

// Compute returns atan2(fx, fz) in degrees, shifted into [0, 360).
// (0, 0) yields 0.
func Compute(fx, fz float64) Heading {
	if math.IsNaN(fx) || math.IsNaN(fz) {
		return 0
	}
	deg := math.Atan2(fx, fz) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return Heading(deg)
}
