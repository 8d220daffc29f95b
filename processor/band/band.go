// Package band derives five smoothed display channels from raw sensor readings.
//
// Each reading is centred on the device midpoint, scaled into a shared base
// amplitude and multiplied into one target per channel. Every channel then
// moves toward its target with its own exponential smoothing factor:
//
//	new = old + (target - old) * factor
//
// This is a display heuristic, not frequency analysis. Values are not clamped.
package band

import "math"

// Midpoint is the neutral raw reading. A reading equal to it yields zero targets.
const Midpoint = 512

// BaseScale converts the centred magnitude into the shared base amplitude.
const BaseScale = 0.1

// Target multipliers applied to the base amplitude.
const (
	AlphaMultiplier = 1.0
	BetaMultiplier  = 1.2
	ThetaMultiplier = 0.8
	DeltaMultiplier = 0.4
	GammaMultiplier = 1.5
)

// Smoothing factors. Higher tracks the target faster.
const (
	AlphaFactor = 0.10
	BetaFactor  = 0.30
	ThetaFactor = 0.03
	DeltaFactor = 0.03
	GammaFactor = 0.30
)

// State holds the current channel values and the last accepted reading.
type State struct {
	Alpha   float64
	Beta    float64
	Theta   float64
	Delta   float64
	Gamma   float64
	LastRaw int
}

// NewState returns the initial state: all channels zero, LastRaw at Midpoint.
func NewState() State {
	return State{LastRaw: Midpoint}
}

// Targets returns the per-channel targets for raw. LastRaw is set to raw.
func Targets(raw int) State {
	base := math.Abs(float64(raw-Midpoint)) * BaseScale
	return State{
		Alpha:   base * AlphaMultiplier,
		Beta:    base * BetaMultiplier,
		Theta:   base * ThetaMultiplier,
		Delta:   base * DeltaMultiplier,
		Gamma:   base * GammaMultiplier,
		LastRaw: raw,
	}
}

// Estimator owns one State. It is not safe for concurrent use; callers
// confine it to a single goroutine.
type Estimator struct {
	state State
}

// NewEstimator creates an Estimator in the initial state.
func NewEstimator() *Estimator {
	return &Estimator{state: NewState()}
}

// Update applies one reading and returns the resulting state.
func (e *Estimator) Update(raw int) State {
	t := Targets(raw)
	s := &e.state
	s.Alpha = smooth(s.Alpha, t.Alpha, AlphaFactor)
	s.Beta = smooth(s.Beta, t.Beta, BetaFactor)
	s.Theta = smooth(s.Theta, t.Theta, ThetaFactor)
	s.Delta = smooth(s.Delta, t.Delta, DeltaFactor)
	s.Gamma = smooth(s.Gamma, t.Gamma, GammaFactor)
	s.LastRaw = raw
	return *s
}

// Snapshot returns a copy of the current state.
func (e *Estimator) Snapshot() State {
	return e.state
}

func smooth(old, target, factor float64) float64 {
	return old + (target-old)*factor
}
