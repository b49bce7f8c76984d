package schedule

import (
	"time"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/wind"
)

// Status says how a period's plan came about
type Status string

const (
	StatusSurveyed        Status = "surveyed"
	StatusUnflyable       Status = "unflyable"
	StatusNothingSelected Status = "nothing_selected"
)

// Plan is the outcome of one survey period. It is not modified after
// PlanPeriod returns it.
type Plan struct {
	Period   int
	Status   Status
	Wind     wind.Sample
	Clusters []*cluster.Cluster

	// Eligible is the candidate count the policy chose from.
	Eligible int

	WellsCovered      int
	EmissionsSampled  float64 // kg/h
	WellsDetected     float64 // expected count in expected mode
	EmissionsDetected float64 // kg/h
	AvgPOD            float64

	// MitigationFraction is detected emissions over the portfolio total.
	MitigationFraction float64

	SurveyTime time.Duration
	FlightDays float64
}

func (p *Plan) ClustersSelected() int { return len(p.Clusters) }

// ClusterIDs lists the surveyed clusters in visiting order.
func (p *Plan) ClusterIDs() []int {
	ids := make([]int, len(p.Clusters))
	for i, c := range p.Clusters {
		ids[i] = c.ID
	}
	return ids
}

// SampledFraction is the share of portfolio wells covered.
func (p *Plan) SampledFraction(totalWells int) float64 {
	if totalWells == 0 {
		return 0
	}
	return float64(p.WellsCovered) / float64(totalWells)
}
