package database

import (
	"time"
)

// Run is a row of simulation_runs: the headline numbers of one run plus
// its full JSON record
type Run struct {
	RunID            string
	Policy           string
	Iterations       int
	Periods          int
	Seed             int64
	TargetFraction   float64
	Sources          int
	Clusters         int
	NoiseWells       int
	TotalEmission    float64
	DetectedMean     float64
	DetectedStd      float64
	MitigationMean   float64
	MitigationCILow  float64
	MitigationCIHigh float64
	AvgPODMean       float64
	UnflyablePeriods int
	Record           []byte // JSON
	StartedAt        time.Time
	FinishedAt       time.Time
	CreatedAt        time.Time
}

// PeriodResult is a row of period_results
type PeriodResult struct {
	RunID          string
	Period         int
	ClustersMean   float64
	WellsMean      float64
	SampledMean    float64
	DetectedMean   float64
	DetectedStd    float64
	AvgPODMean     float64
	MitigationMean float64
	WindMean       float64
	Unflyable      int
}

// Plan is a row of survey_plans
type Plan struct {
	RunID              string
	Iteration          int
	Period             int
	Status             string
	WindSpeed          float64
	ClustersSelected   int
	WellsCovered       int
	EmissionsSampled   float64
	AvgPOD             float64
	WellsDetected      float64
	EmissionsDetected  float64
	MitigationFraction float64
	FlightDays         float64
}

// PolicySummary is a row of policy_summary
type PolicySummary struct {
	Policy         string
	Runs           int
	MitigationMean float64
	MitigationMin  float64
	MitigationMax  float64
	DetectedMean   float64
	AvgPODMean     float64
	LastRunAt      time.Time
	UpdatedAt      time.Time
}
