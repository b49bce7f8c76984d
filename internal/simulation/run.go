package simulation

import (
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/survey-sim/internal/aggregation"
	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/schedule"
)

// Run is the outcome of one Monte Carlo simulation. It owns every plan it
// produced.
type Run struct {
	ID       uuid.UUID
	Config   Config
	Seed     int64
	Started  time.Time
	Finished time.Time

	Portfolio  Portfolio
	Iterations []Iteration
	Periods    []PeriodSummary
	Annual     Metrics
}

// Portfolio describes the fixed inputs shared by every iteration.
type Portfolio struct {
	Sources        int
	Emission       float64 // kg/h
	Clusters       int
	ClusteredWells int
	NoiseWells     int
	Cluster        cluster.Stats
}

// Iteration is one simulated campaign: a plan per period.
type Iteration struct {
	Index  int
	Plans  []*schedule.Plan
	Totals Totals
}

// Totals adds up an iteration's plans.
type Totals struct {
	ClustersSelected  int
	WellsCovered      int
	EmissionsSampled  float64
	WellsDetected     float64
	EmissionsDetected float64
	// AvgPOD is weighted by wells covered in each period.
	AvgPOD             float64
	MitigationFraction float64
	FlightDays         float64
	Unflyable          int
	NothingSelected    int
}

func totals(plans []*schedule.Plan, portfolioEmission float64) Totals {
	var t Totals
	podWells := 0.0
	for _, p := range plans {
		t.ClustersSelected += p.ClustersSelected()
		t.WellsCovered += p.WellsCovered
		t.EmissionsSampled += p.EmissionsSampled
		t.WellsDetected += p.WellsDetected
		t.EmissionsDetected += p.EmissionsDetected
		t.FlightDays += p.FlightDays
		podWells += p.AvgPOD * float64(p.WellsCovered)
		switch p.Status {
		case schedule.StatusUnflyable:
			t.Unflyable++
		case schedule.StatusNothingSelected:
			t.NothingSelected++
		}
	}
	if t.WellsCovered > 0 {
		t.AvgPOD = podWells / float64(t.WellsCovered)
	}
	if portfolioEmission > 0 {
		t.MitigationFraction = t.EmissionsDetected / portfolioEmission
	}
	return t
}

// Metrics summarises the reported quantities across iterations.
type Metrics struct {
	ClustersSelected   aggregation.Summary
	WellsCovered       aggregation.Summary
	EmissionsSampled   aggregation.Summary
	AvgPOD             aggregation.Summary
	WellsDetected      aggregation.Summary
	EmissionsDetected  aggregation.Summary
	MitigationFraction aggregation.Summary
	FlightDays         aggregation.Summary
	WindSpeed          aggregation.Summary
	// Unflyable counts periods grounded by wind, summed over iterations.
	Unflyable       int
	NothingSelected int
}

// PeriodSummary is Metrics for a single period index.
type PeriodSummary struct {
	Period int
	Metrics
}

// series collects one value per iteration for each metric.
type series struct {
	clusters, wells, sampled, pod, detectedWells, detected, mitigation, days, wind []float64

	unflyable, nothing int
}

func newSeries(n int) *series {
	mk := func() []float64 { return make([]float64, 0, n) }
	return &series{
		clusters: mk(), wells: mk(), sampled: mk(), pod: mk(), detectedWells: mk(),
		detected: mk(), mitigation: mk(), days: mk(), wind: mk(),
	}
}

func (s *series) summarize(m aggregation.CIMethod) Metrics {
	return Metrics{
		ClustersSelected:   aggregation.Summarize(s.clusters, m),
		WellsCovered:       aggregation.Summarize(s.wells, m),
		EmissionsSampled:   aggregation.Summarize(s.sampled, m),
		AvgPOD:             aggregation.Summarize(s.pod, m),
		WellsDetected:      aggregation.Summarize(s.detectedWells, m),
		EmissionsDetected:  aggregation.Summarize(s.detected, m),
		MitigationFraction: aggregation.Summarize(s.mitigation, m),
		FlightDays:         aggregation.Summarize(s.days, m),
		WindSpeed:          aggregation.Summarize(s.wind, m),
		Unflyable:          s.unflyable,
		NothingSelected:    s.nothing,
	}
}

// reduce folds iterations, in index order, into per-period and annual
// metrics. Unflyable and empty periods contribute zeros.
func (r *Run) reduce() {
	n := len(r.Iterations)
	method := r.Config.CIMethod
	annual := newSeries(n)
	periods := make([]*series, r.Config.Periods)
	for p := range periods {
		periods[p] = newSeries(n)
	}

	for _, it := range r.Iterations {
		windSum := 0.0
		for p, plan := range it.Plans {
			s := periods[p]
			s.clusters = append(s.clusters, float64(plan.ClustersSelected()))
			s.wells = append(s.wells, float64(plan.WellsCovered))
			s.sampled = append(s.sampled, plan.EmissionsSampled)
			s.pod = append(s.pod, plan.AvgPOD)
			s.detectedWells = append(s.detectedWells, plan.WellsDetected)
			s.detected = append(s.detected, plan.EmissionsDetected)
			s.mitigation = append(s.mitigation, plan.MitigationFraction)
			s.days = append(s.days, plan.FlightDays)
			s.wind = append(s.wind, plan.Wind.SpeedMS)
			windSum += plan.Wind.SpeedMS
			switch plan.Status {
			case schedule.StatusUnflyable:
				s.unflyable++
			case schedule.StatusNothingSelected:
				s.nothing++
			}
		}

		t := it.Totals
		annual.clusters = append(annual.clusters, float64(t.ClustersSelected))
		annual.wells = append(annual.wells, float64(t.WellsCovered))
		annual.sampled = append(annual.sampled, t.EmissionsSampled)
		annual.pod = append(annual.pod, t.AvgPOD)
		annual.detectedWells = append(annual.detectedWells, t.WellsDetected)
		annual.detected = append(annual.detected, t.EmissionsDetected)
		annual.mitigation = append(annual.mitigation, t.MitigationFraction)
		annual.days = append(annual.days, t.FlightDays)
		annual.wind = append(annual.wind, windSum/float64(len(it.Plans)))
		annual.unflyable += t.Unflyable
		annual.nothing += t.NothingSelected
	}

	r.Periods = make([]PeriodSummary, len(periods))
	for p, s := range periods {
		r.Periods[p] = PeriodSummary{Period: p, Metrics: s.summarize(method)}
	}
	r.Annual = annual.summarize(method)
}

// Duration is the wall time the run took.
func (r *Run) Duration() time.Duration { return r.Finished.Sub(r.Started) }
