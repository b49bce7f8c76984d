package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/smukkama/survey-sim/internal/capacity"
	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/detection"
	"github.com/smukkama/survey-sim/internal/rand"
	"github.com/smukkama/survey-sim/internal/wind"
)

// ErrInvalidParams is returned by Params.Validate and New
var ErrInvalidParams = errors.New("invalid scheduler parameters")

// DetectionMode selects how a surveyed well's detection is evaluated
type DetectionMode string

const (
	// DetectBernoulli draws each well's detection from its POD.
	DetectBernoulli DetectionMode = "bernoulli"
	// DetectExpected credits each well with emission times POD.
	DetectExpected DetectionMode = "expected"
)

func ParseDetectionMode(s string) (DetectionMode, error) {
	switch m := DetectionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case DetectBernoulli, DetectExpected:
		return m, nil
	case "":
		return DetectBernoulli, nil
	}
	return "", fmt.Errorf("%w: unknown detection mode %q", ErrInvalidParams, s)
}

// Params bound what a single period may survey.
type Params struct {
	TargetFraction float64 // share of clusters to select, (0,1]
	DayBudget      float64 // fleet flight-days per period; 0 means unlimited
	WellsPerDay    float64 // wells per flight-day; 0 means unlimited
	Detection      DetectionMode
}

func (p Params) Validate() error {
	switch {
	case !(p.TargetFraction > 0) || p.TargetFraction > 1:
		return fmt.Errorf("%w: target fraction must be in (0,1], got %v", ErrInvalidParams, p.TargetFraction)
	case p.DayBudget < 0 || math.IsNaN(p.DayBudget) || math.IsInf(p.DayBudget, 0):
		return fmt.Errorf("%w: day budget must not be negative, got %v", ErrInvalidParams, p.DayBudget)
	case p.WellsPerDay < 0 || math.IsNaN(p.WellsPerDay) || math.IsInf(p.WellsPerDay, 0):
		return fmt.Errorf("%w: wells per day must not be negative, got %v", ErrInvalidParams, p.WellsPerDay)
	case p.Detection != DetectBernoulli && p.Detection != DetectExpected:
		return fmt.Errorf("%w: unknown detection mode %q", ErrInvalidParams, p.Detection)
	}
	return nil
}

// Quota is the number of clusters the target fraction allows out of n.
func (p Params) Quota(n int) int {
	return int(math.Floor(p.TargetFraction*float64(n) + 1e-9))
}

// Scheduler plans successive survey periods over a fixed cluster set. Each
// Scheduler owns its rotation state, so one must be created per simulated
// campaign and used from a single goroutine.
type Scheduler struct {
	clusters  []*cluster.Cluster
	policy    Policy
	estimator capacity.Estimator
	model     detection.Model
	params    Params

	portfolioEmission float64
	rotation          *Rotation
}

// New creates a scheduler. portfolioEmission is the total emission of every
// source, clustered or not, and is the denominator of the mitigation
// fraction.
func New(clusters []*cluster.Cluster, policy Policy, est capacity.Estimator, model detection.Model, params Params, portfolioEmission float64) (*Scheduler, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: no selection policy", ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := est.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if portfolioEmission < 0 || math.IsNaN(portfolioEmission) {
		return nil, fmt.Errorf("%w: portfolio emission %v", ErrInvalidParams, portfolioEmission)
	}
	return &Scheduler{
		clusters:          clusters,
		policy:            policy,
		estimator:         est,
		model:             model,
		params:            params,
		portfolioEmission: portfolioEmission,
		rotation:          NewRotation(len(clusters)),
	}, nil
}

func (s *Scheduler) Rotation() *Rotation { return s.rotation }

func (s *Scheduler) Policy() Policy { return s.policy }

// PlanPeriod selects and surveys clusters for one period. An unflyable
// wind sample yields an empty plan without consuming randomness.
func (s *Scheduler) PlanPeriod(period int, w wind.Sample, r *rand.Rand) *Plan {
	plan := &Plan{Period: period, Wind: w}
	if !w.Flyable {
		plan.Status = StatusUnflyable
		return plan
	}

	candidates := s.clusters
	if s.policy.Kind() == KindRotation {
		candidates = s.rotation.Eligible(s.clusters)
	}
	plan.Eligible = len(candidates)

	quota := s.params.Quota(len(s.clusters))
	picked := s.policy.Select(candidates, quota, r)
	s.budget(plan, picked)

	if len(plan.Clusters) == 0 {
		plan.Status = StatusNothingSelected
		return plan
	}
	plan.Status = StatusSurveyed
	if s.policy.Kind() == KindRotation {
		s.rotation.Mark(plan.Clusters)
	}

	s.detect(plan, r)
	return plan
}

// budget keeps the longest prefix of picked that fits the flight-time and
// well budgets.
func (s *Scheduler) budget(plan *Plan, picked []*cluster.Cluster) {
	var (
		route     capacity.Route
		timeLimit = s.estimator.Budget(s.params.DayBudget)
		wellLimit = s.params.DayBudget * s.params.WellsPerDay
	)
	for _, c := range picked {
		if s.params.DayBudget > 0 {
			if route.Total+route.Cost(s.estimator, c) > timeLimit {
				break
			}
			if s.params.WellsPerDay > 0 && float64(route.Wells+c.Size()) > wellLimit {
				break
			}
		}
		route.Add(s.estimator, c)
		plan.Clusters = append(plan.Clusters, c)
	}
	// admission charges selection order; the flight itself may take the
	// shorter centroid-order route
	plan.SurveyTime = s.estimator.FlightTime(plan.Clusters)
	plan.FlightDays = s.estimator.Days(plan.SurveyTime)
}

func (s *Scheduler) detect(plan *Plan, r *rand.Rand) {
	speed := plan.Wind.SpeedMS
	podSum := 0.0
	for _, c := range plan.Clusters {
		for _, m := range c.Members {
			e := m.EmissionKgh
			p := s.model.Probability(e, speed)
			podSum += p
			plan.WellsCovered++
			plan.EmissionsSampled += e

			switch s.params.Detection {
			case DetectExpected:
				plan.WellsDetected += p
				plan.EmissionsDetected += e * p
			default:
				if r.Bernoulli(p) {
					plan.WellsDetected++
					plan.EmissionsDetected += e
				}
			}
		}
	}
	if plan.WellsCovered > 0 {
		plan.AvgPOD = podSum / float64(plan.WellsCovered)
	}
	if s.portfolioEmission > 0 {
		plan.MitigationFraction = plan.EmissionsDetected / s.portfolioEmission
	}
}
