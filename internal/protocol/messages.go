package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/survey-sim/internal/aggregation"
)

// MessageType represents the type of message
type MessageType string

const (
	MsgTypeRun MessageType = "simulation_run"
)

// SchemaVersion is bumped whenever a field is renamed or removed.
const SchemaVersion = 1

// BaseMessage is the common structure for all messages
type BaseMessage struct {
	Type    MessageType `json:"type"`
	Version int         `json:"version"`
}

// RunRecord is the machine-readable outcome of one simulation run
type RunRecord struct {
	Type       MessageType       `json:"type"`
	Version    int               `json:"version"`
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Config     ConfigRecord      `json:"config"`
	Portfolio  PortfolioRecord   `json:"portfolio"`
	Periods    []PeriodRecord    `json:"periods"`
	Annual     MetricsRecord     `json:"annual"`
	Iterations []IterationRecord `json:"iterations,omitempty"`
}

// ConfigRecord echoes the parameters the run used
type ConfigRecord struct {
	Policy            string   `json:"selection_policy"`
	Iterations        int      `json:"iterations"`
	Periods           int      `json:"periods"`
	Seed              int64    `json:"random_seed"`
	TargetFraction    float64  `json:"target_fraction"`
	DayBudget         float64  `json:"day_budget_per_period"`
	WellsPerDay       float64  `json:"wells_per_day_capacity"`
	DetectionMode     string   `json:"detection_mode"`
	CIMethod          string   `json:"ci_method"`
	EpsKm             float64  `json:"eps_distance_km"`
	MinClusterSize    int      `json:"min_cluster_size"`
	DwellBaseMin      float64  `json:"dwell_base_min"`
	DwellPerMemberMin float64  `json:"dwell_per_member_min"`
	TravelSpeedKmh    float64  `json:"travel_speed_kmh"`
	BaselineThreshold float64  `json:"baseline_threshold_kgh"`
	BaselineWind      float64  `json:"baseline_wind_ms"`
	WindSensitivity   float64  `json:"wind_sensitivity"`
	PODFloor          float64  `json:"pod_floor"`
	PODCeiling        float64  `json:"pod_ceiling"`
	FlyableWindMin    float64  `json:"flyable_wind_min"`
	FlyableWindMax    float64  `json:"flyable_wind_max"`
	Wind              []string `json:"wind_distributions"`
}

// PortfolioRecord describes the clustered source set
type PortfolioRecord struct {
	Sources             int     `json:"sources"`
	TotalEmission       float64 `json:"total_emission_kgh"`
	Clusters            int     `json:"clusters"`
	ClusteredWells      int     `json:"clustered_wells"`
	NoiseWells          int     `json:"noise_wells"`
	MeanWellsPerCluster float64 `json:"mean_wells_per_cluster"`
	ClusteredEmission   float64 `json:"clustered_emission_kgh"`
	NoiseEmission       float64 `json:"noise_emission_kgh"`
}

// MetricsRecord carries mean, std and 95% CI of each reported quantity
type MetricsRecord struct {
	ClustersSelected   aggregation.Summary `json:"clusters_selected"`
	WellsCovered       aggregation.Summary `json:"wells_covered"`
	EmissionsSampled   aggregation.Summary `json:"emissions_sampled_kgh"`
	AvgPOD             aggregation.Summary `json:"avg_pod"`
	WellsDetected      aggregation.Summary `json:"wells_detected"`
	EmissionsDetected  aggregation.Summary `json:"emissions_detected_kgh"`
	MitigationFraction aggregation.Summary `json:"mitigation_fraction"`
	FlightDays         aggregation.Summary `json:"flight_days"`
	WindSpeed          aggregation.Summary `json:"wind_speed_ms"`
	UnflyablePeriods   int                 `json:"unflyable_periods"`
	NothingSelected    int                 `json:"nothing_selected_periods"`
}

// PeriodRecord is MetricsRecord for one period index
type PeriodRecord struct {
	Period int `json:"period"`
	MetricsRecord
}

// IterationRecord holds one iteration's plans
type IterationRecord struct {
	Index int          `json:"iteration"`
	Plans []PlanRecord `json:"plans"`
}

// PlanRecord is one period's survey plan
type PlanRecord struct {
	Period             int     `json:"period"`
	Status             string  `json:"status"`
	WindSpeed          float64 `json:"wind_speed_ms"`
	Flyable            bool    `json:"flyable"`
	ClusterIDs         []int   `json:"cluster_ids,omitempty"`
	ClustersSelected   int     `json:"clusters_selected"`
	WellsCovered       int     `json:"wells_covered"`
	EmissionsSampled   float64 `json:"emissions_sampled_kgh"`
	AvgPOD             float64 `json:"avg_pod"`
	WellsDetected      float64 `json:"wells_detected"`
	EmissionsDetected  float64 `json:"emissions_detected_kgh"`
	MitigationFraction float64 `json:"mitigation_fraction"`
	SurveyHours        float64 `json:"survey_hours"`
	FlightDays         float64 `json:"flight_days"`
}

// ParseMessage parses a JSON message into the appropriate record type
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if base.Version > SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", base.Version)
	}

	switch base.Type {
	case MsgTypeRun:
		var msg RunRecord
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid run record: %w", err)
		}
		if err := validateRun(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// validateRun validates a run record
func validateRun(msg *RunRecord) error {
	if _, err := uuid.Parse(msg.RunID); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	if len(msg.Periods) == 0 {
		return fmt.Errorf("run record has no periods")
	}
	if msg.Config.Policy == "" {
		return fmt.Errorf("selection_policy is required")
	}
	return nil
}
