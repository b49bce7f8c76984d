package simulation

import (
	"fmt"
	"math"
)

// Projection is the expected cumulative effect of repeating a run's annual
// programme for a number of years.
type Projection struct {
	Year int `json:"year"`
	// AnnualDetected is the mean emission rate found per year, kg/h.
	AnnualDetected   float64 `json:"annual_detected_kgh"`
	AnnualMitigation float64 `json:"annual_mitigation_fraction"`
	// CumulativeLinear adds each year's detections as if every year drew
	// from the untouched portfolio.
	CumulativeLinear float64 `json:"cumulative_linear_fraction"`
	// CumulativeCompounded assumes detected sources are repaired, so each
	// year mitigates the same fraction of what remains.
	CumulativeCompounded float64 `json:"cumulative_compounded_fraction"`
}

// Project extends a run's mean annual mitigation over years.
func Project(run *Run, years int) ([]Projection, error) {
	if run == nil {
		return nil, fmt.Errorf("%w: no run to project", ErrInvalidConfig)
	}
	if years < 1 {
		return nil, fmt.Errorf("%w: years must be at least 1, got %d", ErrInvalidConfig, years)
	}

	annual := math.Min(1, math.Max(0, run.Annual.MitigationFraction.Mean))
	detected := run.Annual.EmissionsDetected.Mean

	out := make([]Projection, years)
	for y := 1; y <= years; y++ {
		out[y-1] = Projection{
			Year:                 y,
			AnnualDetected:       detected,
			AnnualMitigation:     annual,
			CumulativeLinear:     annual * float64(y),
			CumulativeCompounded: 1 - math.Pow(1-annual, float64(y)),
		}
	}
	return out, nil
}
