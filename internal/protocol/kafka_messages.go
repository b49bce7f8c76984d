package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/smukkama/survey-sim/internal/schedule"
	"github.com/smukkama/survey-sim/internal/simulation"
)

// FromRun converts a simulation run into its record. Per-iteration plans are
// included only when withPlans is set; they dominate the record size.
func FromRun(run *simulation.Run, withPlans bool) *RunRecord {
	cfg := run.Config
	rec := &RunRecord{
		Type:       MsgTypeRun,
		Version:    SchemaVersion,
		RunID:      run.ID.String(),
		StartedAt:  run.Started,
		FinishedAt: run.Finished,
		Config: ConfigRecord{
			Policy:            cfg.Policy,
			Iterations:        cfg.Iterations,
			Periods:           cfg.Periods,
			Seed:              run.Seed,
			TargetFraction:    cfg.Schedule.TargetFraction,
			DayBudget:         cfg.Schedule.DayBudget,
			WellsPerDay:       cfg.Schedule.WellsPerDay,
			DetectionMode:     string(cfg.Schedule.Detection),
			CIMethod:          string(cfg.CIMethod),
			EpsKm:             cfg.Cluster.EpsKm,
			MinClusterSize:    cfg.Cluster.MinSize,
			DwellBaseMin:      cfg.Estimator.DwellBase.Minutes(),
			DwellPerMemberMin: cfg.Estimator.DwellPerMember.Minutes(),
			TravelSpeedKmh:    cfg.Estimator.TravelSpeedKmh,
			BaselineThreshold: cfg.Model.BaselineThreshold,
			BaselineWind:      cfg.Model.BaselineWind,
			WindSensitivity:   cfg.Model.WindSensitivity,
			PODFloor:          cfg.Model.Floor,
			PODCeiling:        cfg.Model.Ceiling,
			FlyableWindMin:    cfg.Wind.Min,
			FlyableWindMax:    cfg.Wind.Max,
		},
		Portfolio: PortfolioRecord{
			Sources:             run.Portfolio.Sources,
			TotalEmission:       run.Portfolio.Emission,
			Clusters:            run.Portfolio.Clusters,
			ClusteredWells:      run.Portfolio.ClusteredWells,
			NoiseWells:          run.Portfolio.NoiseWells,
			MeanWellsPerCluster: run.Portfolio.Cluster.MeanWellsPerCluster,
			ClusteredEmission:   run.Portfolio.Cluster.ClusteredEmission,
			NoiseEmission:       run.Portfolio.Cluster.NoiseEmission,
		},
		Annual: metricsRecord(run.Annual),
	}
	for _, d := range cfg.Wind.Seasons {
		rec.Config.Wind = append(rec.Config.Wind, d.String())
	}
	for _, p := range run.Periods {
		rec.Periods = append(rec.Periods, PeriodRecord{Period: p.Period, MetricsRecord: metricsRecord(p.Metrics)})
	}

	if withPlans {
		for _, it := range run.Iterations {
			ir := IterationRecord{Index: it.Index}
			for _, p := range it.Plans {
				ir.Plans = append(ir.Plans, PlanFromSchedule(p))
			}
			rec.Iterations = append(rec.Iterations, ir)
		}
	}
	return rec
}

// PlanFromSchedule converts a scheduler plan into its record
func PlanFromSchedule(p *schedule.Plan) PlanRecord {
	return PlanRecord{
		Period:             p.Period,
		Status:             string(p.Status),
		WindSpeed:          p.Wind.SpeedMS,
		Flyable:            p.Wind.Flyable,
		ClusterIDs:         p.ClusterIDs(),
		ClustersSelected:   p.ClustersSelected(),
		WellsCovered:       p.WellsCovered,
		EmissionsSampled:   p.EmissionsSampled,
		AvgPOD:             p.AvgPOD,
		WellsDetected:      p.WellsDetected,
		EmissionsDetected:  p.EmissionsDetected,
		MitigationFraction: p.MitigationFraction,
		SurveyHours:        p.SurveyTime.Hours(),
		FlightDays:         p.FlightDays,
	}
}

func metricsRecord(m simulation.Metrics) MetricsRecord {
	return MetricsRecord{
		ClustersSelected:   m.ClustersSelected,
		WellsCovered:       m.WellsCovered,
		EmissionsSampled:   m.EmissionsSampled,
		AvgPOD:             m.AvgPOD,
		WellsDetected:      m.WellsDetected,
		EmissionsDetected:  m.EmissionsDetected,
		MitigationFraction: m.MitigationFraction,
		FlightDays:         m.FlightDays,
		WindSpeed:          m.WindSpeed,
		UnflyablePeriods:   m.Unflyable,
		NothingSelected:    m.NothingSelected,
	}
}

// EncodeRunRecord encodes a RunRecord to JSON
func EncodeRunRecord(rec *RunRecord) ([]byte, error) {
	return json.Marshal(rec)
}

// DecodeRunRecord decodes and validates a RunRecord
func DecodeRunRecord(data []byte) (*RunRecord, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	rec, ok := msg.(*RunRecord)
	if !ok {
		return nil, fmt.Errorf("expected %s message, got %T", MsgTypeRun, msg)
	}
	return rec, nil
}
