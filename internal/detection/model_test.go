package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func unclamped() Model {
	m := Default()
	m.Floor, m.Ceiling = 0, 1
	return m
}

func TestCenterIsHalf(t *testing.T) {
	m := unclamped()
	assert.InDelta(t, 0.5, m.Probability(m.BaselineThreshold, m.BaselineWind), 1e-12)

	m.CalibrationPOD = 0.5
	assert.InDelta(t, 0.5, m.Probability(m.BaselineThreshold, m.BaselineWind), 1e-12)
}

func TestCalibrationPoint(t *testing.T) {
	m := unclamped()
	m.CalibrationPOD = 0.9
	assert.InDelta(t, 0.9, m.Probability(1.27, 3.5), 1e-12)
	// with steepness 2 the centre sits at threshold / 3
	assert.InDelta(t, 1.27/3, m.Center(3.5), 1e-12)
	assert.InDelta(t, 0.5, m.Probability(1.27/3, 3.5), 1e-12)
}

func TestMonotoneInEmission(t *testing.T) {
	m := Default()
	for _, wind := range []float64{1, 2.5, 3.5, 4.2, 6} {
		prev := -1.0
		for e := 0.0; e < 50; e += 0.05 {
			p := m.Probability(e, wind)
			assert.GreaterOrEqual(t, p, prev, "wind %v e %v", wind, e)
			assert.GreaterOrEqual(t, p, m.Floor)
			assert.LessOrEqual(t, p, m.Ceiling)
			prev = p
		}
	}
}

func TestWindEffect(t *testing.T) {
	m := Default()
	calm := m.Probability(1.0, 1.5)
	base := m.Probability(1.0, 3.5)
	breezy := m.Probability(1.0, 5.5)
	assert.Less(t, calm, base)
	assert.Less(t, base, breezy)

	assert.InDelta(t, 1.27*math.Exp(-0.3*2), m.Center(5.5), 1e-12)
}

func TestClamp(t *testing.T) {
	m := Default()
	assert.Equal(t, m.Floor, m.Probability(0, 3.5))
	assert.Equal(t, m.Floor, m.Probability(-1, 3.5))
	assert.Equal(t, m.Floor, m.Probability(1e-9, 3.5))
	assert.Equal(t, m.Ceiling, m.Probability(1e9, 3.5))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	bad := Default()
	bad.Floor, bad.Ceiling = 0.6, 0.4
	assert.ErrorIs(t, bad.Validate(), ErrInvalidModel)

	bad = Default()
	bad.BaselineThreshold = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidModel)

	bad = Default()
	bad.CalibrationPOD = 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidModel)
}

func TestExpectedPOD(t *testing.T) {
	m := unclamped()
	// symmetric in log space around the centre
	rates := []float64{1.27 / 4, 1.27 * 4}
	assert.InDelta(t, 0.5, m.ExpectedPOD(rates, 3.5), 1e-12)
	assert.Equal(t, 0.0, m.ExpectedPOD(nil, 3.5))
}
