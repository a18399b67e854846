package benefit

import "fmt"

// Knot is one (time, value) point of a curve. Time is relative to the curve origin.
type Knot struct {
	T float64
	V float64
}

// Curve is a piecewise-linear function of absolute simulation time.
// Evaluation clamps to the first/last knot value outside the knot range.
// The zero Curve is unset.
type Curve struct {
	Origin float64
	Knots  []Knot
}

// New copies knots and anchors them at origin.
func New(knots []Knot, origin float64) Curve {
	if len(knots) < 2 {
		panic(fmt.Sprintf("benefit: curve needs at least 2 knots, got %d", len(knots)))
	}
	ks := make([]Knot, len(knots))
	copy(ks, knots)
	return Curve{Origin: origin, Knots: ks}
}

// FromPairs builds knots from [t, v] pairs as they appear in the parameter file.
func FromPairs(pairs [][2]float64) []Knot {
	out := make([]Knot, len(pairs))
	for i, p := range pairs {
		out[i] = Knot{T: p[0], V: p[1]}
	}
	return out
}

// Validate checks that knot times are non-decreasing.
func Validate(knots []Knot) error {
	if len(knots) < 2 {
		return fmt.Errorf("need at least 2 knots, got %d", len(knots))
	}
	for i := 1; i < len(knots); i++ {
		if knots[i].T < knots[i-1].T {
			return fmt.Errorf("knot %d time %.4g before knot %d time %.4g", i, knots[i].T, i-1, knots[i-1].T)
		}
	}
	return nil
}

// Set reports whether the curve has knots.
func (c *Curve) Set() bool { return len(c.Knots) > 0 }

func (c *Curve) Eval(t float64) float64 {
	x := t - c.Origin
	ks := c.Knots
	if x <= ks[0].T {
		return ks[0].V
	}
	last := ks[len(ks)-1]
	if x >= last.T {
		return last.V
	}
	for i := 1; i < len(ks); i++ {
		if x > ks[i].T {
			continue
		}
		a, b := ks[i-1], ks[i]
		if b.T == a.T {
			return b.V
		}
		return a.V + (b.V-a.V)*(x-a.T)/(b.T-a.T)
	}
	return last.V
}

// At returns the absolute time of knot i.
func (c *Curve) At(i int) float64 { return c.Origin + c.Knots[i].T }

// Booster builds the re-anchored curve used for a booster dose at time t:
// current value now, ramp to max by maxTime, hold until maxEnd, decay to 0 by noEffects.
func Booster(current, max, maxTime, maxEnd, noEffects, t float64) Curve {
	return New([]Knot{
		{T: 0, V: current},
		{T: maxTime, V: max},
		{T: maxEnd, V: max},
		{T: noEffects, V: 0},
	}, t)
}
