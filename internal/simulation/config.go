package simulation

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/smukkama/survey-sim/internal/aggregation"
	"github.com/smukkama/survey-sim/internal/capacity"
	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/detection"
	"github.com/smukkama/survey-sim/internal/schedule"
	"github.com/smukkama/survey-sim/internal/wind"
	"github.com/smukkama/survey-sim/pkg/config"
)

// ErrInvalidConfig wraps every configuration error found by Validate
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config is everything one simulation run depends on.
type Config struct {
	Cluster   cluster.Params
	Estimator capacity.Estimator
	Model     detection.Model
	Schedule  schedule.Params
	Wind      wind.Sampler

	// WindRecord holds the hourly speeds of the wind file FromConfig
	// loaded, if any.
	WindRecord []float64

	Policy     string
	Strata     int
	Periods    int
	Iterations int
	Seed       int64 // 0 draws a seed from the clock
	CIMethod   aggregation.CIMethod
	Workers    int // 0 means runtime.NumCPU()
}

// Default is a quarterly random 20% programme with the stock detection and
// capacity parameters, a quarter of 195 flight-days per period, and uniform
// flyable wind.
func Default() Config {
	return Config{
		Cluster:   cluster.Params{EpsKm: 0.8, MinSize: 2},
		Estimator: capacity.Default(),
		Model:     detection.Default(),
		Schedule: schedule.Params{
			TargetFraction: 0.2,
			DayBudget:      48.75,
			Detection:      schedule.DetectBernoulli,
		},
		Wind: wind.Sampler{
			Seasons:  []wind.Distribution{wind.Uniform{Min: 1, Max: 6}},
			Min:      1,
			Max:      6,
			Mode:     wind.ModeRedraw,
			MaxDraws: 100,
		},
		Policy:     string(schedule.KindRandom),
		Strata:     4,
		Periods:    4,
		Iterations: 100,
		CIMethod:   aggregation.CINormal,
	}
}

// Validate reports the first problem with c. It is called before any
// iteration runs.
func (c Config) Validate() error {
	checks := []error{
		c.Cluster.Validate(),
		c.Estimator.Validate(),
		c.Model.Validate(),
		c.Schedule.Validate(),
		c.Wind.Validate(),
	}
	if _, err := schedule.ParsePolicy(c.Policy, c.Strata); err != nil {
		checks = append(checks, err)
	}
	if _, err := aggregation.ParseCIMethod(string(c.CIMethod)); err != nil {
		checks = append(checks, err)
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	switch {
	case c.Periods < 1:
		return fmt.Errorf("%w: periods must be at least 1, got %d", ErrInvalidConfig, c.Periods)
	case c.Iterations < 1:
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalidConfig, c.Iterations)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

func (c Config) workers() int {
	n := c.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > c.Iterations {
		n = c.Iterations
	}
	return n
}

// FromConfig builds a simulation config from environment settings, loading
// the wind record when one is configured.
func FromConfig(s config.SurveyConfig) (Config, error) {
	est := capacity.Estimator{
		DwellBase:         s.DwellBase,
		DwellPerMember:    s.DwellPerMember,
		TravelSpeedKmh:    s.TravelSpeedKmh,
		FlightHoursPerDay: s.FlightHoursPerDay,
		Aircraft:          s.Aircraft,
	}
	detect, err := schedule.ParseDetectionMode(s.DetectionMode)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ci, err := aggregation.ParseCIMethod(s.CIMethod)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var record []float64
	if s.WindTMYFile != "" {
		if record, err = wind.LoadRecord(s.WindTMYFile); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	seasons := make([]wind.Distribution, 0, len(s.Wind))
	for _, spec := range s.Wind {
		d, err := wind.ParseDistribution(spec, record)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		seasons = append(seasons, d)
	}

	cfg := Config{
		Cluster: cluster.Params{
			EpsKm:   s.EpsKm,
			MinSize: s.MinClusterSize,
			Dwell:   est.Dwell,
		},
		Estimator: est,
		Model: detection.Model{
			BaselineThreshold: s.BaselineThreshold,
			BaselineWind:      s.BaselineWind,
			WindSensitivity:   s.WindSensitivity,
			Steepness:         s.PODSteepness,
			Floor:             s.PODFloor,
			Ceiling:           s.PODCeiling,
			CalibrationPOD:    s.PODCalibration,
		},
		Schedule: schedule.Params{
			TargetFraction: s.TargetFraction,
			DayBudget:      s.DayBudget,
			WellsPerDay:    s.WellsPerDay,
			Detection:      detect,
		},
		WindRecord: record,
		Wind: wind.Sampler{
			Seasons:  seasons,
			Min:      s.FlyableMin,
			Max:      s.FlyableMax,
			Mode:     wind.Mode(strings.ToLower(s.WindMode)),
			MaxDraws: s.WindMaxDraws,
		},
		Policy:     s.Policy,
		Strata:     s.Strata,
		Periods:    s.Periods,
		Iterations: s.Iterations,
		Seed:       s.Seed,
		CIMethod:   ci,
		Workers:    s.Workers,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FlyableFraction is the share of the wind record inside the flyable
// range, or 0 without a record.
func (c Config) FlyableFraction() float64 {
	return wind.FlyableFraction(c.WindRecord, c.Wind.Min, c.Wind.Max)
}
