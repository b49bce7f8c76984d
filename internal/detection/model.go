package detection

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidModel is returned by Validate
var ErrInvalidModel = errors.New("invalid detection model")

// Model is a wind-conditioned probability-of-detection curve: a logistic in
// log emission rate whose centre shifts with wind speed.
type Model struct {
	BaselineThreshold float64 // kg/h
	BaselineWind      float64 // m/s
	WindSensitivity   float64 // per m/s
	Steepness         float64 // logistic slope in log space; 0 means 2
	Floor             float64
	Ceiling           float64

	// CalibrationPOD is the POD the model must give at BaselineThreshold
	// and BaselineWind. 0 or 0.5 puts the logistic centre at the threshold.
	CalibrationPOD float64
}

// Default mirrors the published airborne LiDAR curve: 1.27 kg/h at a 3.5 m/s
// baseline wind with a 0.3 per m/s wind adjustment.
func Default() Model {
	return Model{
		BaselineThreshold: 1.27,
		BaselineWind:      3.5,
		WindSensitivity:   0.3,
		Steepness:         2,
		Floor:             0.001,
		Ceiling:           0.999,
	}
}

func (m Model) Validate() error {
	switch {
	case !(m.BaselineThreshold > 0):
		return fmt.Errorf("%w: baseline threshold must be positive, got %v", ErrInvalidModel, m.BaselineThreshold)
	case m.Steepness < 0 || math.IsNaN(m.Steepness):
		return fmt.Errorf("%w: steepness must not be negative, got %v", ErrInvalidModel, m.Steepness)
	case math.IsNaN(m.WindSensitivity) || math.IsNaN(m.BaselineWind):
		return fmt.Errorf("%w: wind parameters must be numbers", ErrInvalidModel)
	case m.Floor < 0 || m.Ceiling > 1 || !(m.Floor <= m.Ceiling):
		return fmt.Errorf("%w: need 0 <= floor <= ceiling <= 1, got floor %v ceiling %v", ErrInvalidModel, m.Floor, m.Ceiling)
	case m.CalibrationPOD < 0 || m.CalibrationPOD >= 1:
		return fmt.Errorf("%w: calibration POD must be in [0,1), got %v", ErrInvalidModel, m.CalibrationPOD)
	}
	return nil
}

func (m Model) steepness() float64 {
	if m.Steepness == 0 {
		return 2
	}
	return m.Steepness
}

// Center returns the emission rate with POD 0.5 at the given wind speed.
// Wind above baseline lowers it; wind below raises it.
func (m Model) Center(wind float64) float64 {
	c := m.BaselineThreshold
	if q := m.CalibrationPOD; q > 0 && q != 0.5 {
		c *= math.Exp(-math.Log(q/(1-q)) / m.steepness())
	}
	return c * math.Exp(-m.WindSensitivity*(wind-m.BaselineWind))
}

// Probability returns the POD for a source emitting at rate kg/h under the
// given wind, clamped to [Floor, Ceiling].
func (m Model) Probability(rate, wind float64) float64 {
	if !(rate > 0) {
		return m.Floor
	}
	x := m.steepness() * (math.Log(rate) - math.Log(m.Center(wind)))
	return m.clamp(1 / (1 + math.Exp(-x)))
}

func (m Model) clamp(p float64) float64 {
	return math.Min(m.Ceiling, math.Max(m.Floor, p))
}

// ExpectedPOD is the mean POD over a set of emission rates at one wind speed.
func (m Model) ExpectedPOD(rates []float64, wind float64) float64 {
	if len(rates) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range rates {
		sum += m.Probability(e, wind)
	}
	return sum / float64(len(rates))
}
