package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/smukkama/survey-sim/internal/portfolio"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// UpsertSources inserts or updates the portfolio in one transaction
func (db *DB) UpsertSources(ctx context.Context, sources []portfolio.Source) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sources (source_id, latitude, longitude, emission_kgh)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE
		SET latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    emission_kgh = EXCLUDED.emission_kgh,
		    updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare source upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sources {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Latitude, s.Longitude, s.EmissionKgh); err != nil {
			return fmt.Errorf("failed to upsert source %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// LoadSources reads and validates the whole portfolio
func (db *DB) LoadSources(ctx context.Context) ([]portfolio.Source, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT source_id, latitude, longitude, emission_kgh
		FROM sources
		ORDER BY source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []portfolio.Source
	for rows.Next() {
		var s portfolio.Source
		if err := rows.Scan(&s.ID, &s.Latitude, &s.Longitude, &s.EmissionKgh); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := portfolio.Validate(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// InsertRun stores a run with its period results and plans. Re-inserting a
// run that already exists is a no-op, so replayed messages are harmless.
func (db *DB) InsertRun(ctx context.Context, run *Run, periods []*PeriodResult, plans []*Plan) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO simulation_runs (
			run_id, policy, iterations, periods, seed, target_fraction,
			sources, clusters, noise_wells, total_emission_kgh,
			detected_mean, detected_std, mitigation_mean, mitigation_ci_low, mitigation_ci_high,
			avg_pod_mean, unflyable_periods, record, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (run_id) DO NOTHING
	`,
		run.RunID, run.Policy, run.Iterations, run.Periods, run.Seed, run.TargetFraction,
		run.Sources, run.Clusters, run.NoiseWells, run.TotalEmission,
		run.DetectedMean, run.DetectedStd, run.MitigationMean, run.MitigationCILow, run.MitigationCIHigh,
		run.AvgPODMean, run.UnflyablePeriods, string(run.Record), run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, p := range periods {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO period_results (
				run_id, period, clusters_mean, wells_mean, sampled_mean, detected_mean,
				detected_std, avg_pod_mean, mitigation_mean, wind_mean, unflyable
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			run.RunID, p.Period, p.ClustersMean, p.WellsMean, p.SampledMean, p.DetectedMean,
			p.DetectedStd, p.AvgPODMean, p.MitigationMean, p.WindMean, p.Unflyable,
		); err != nil {
			return fmt.Errorf("failed to insert period %d: %w", p.Period, err)
		}
	}

	if len(plans) > 0 {
		if err := copyPlans(ctx, tx, run.RunID, plans); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// copyPlans bulk-loads plan rows with COPY
func copyPlans(ctx context.Context, tx *sql.Tx, runID string, plans []*Plan) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("survey_plans",
		"run_id", "iteration", "period", "status", "wind_speed_ms", "clusters_selected",
		"wells_covered", "emissions_sampled_kgh", "avg_pod", "wells_detected",
		"emissions_detected_kgh", "mitigation_fraction", "flight_days",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare plan copy: %w", err)
	}

	for _, p := range plans {
		if _, err := stmt.ExecContext(ctx,
			runID, p.Iteration, p.Period, p.Status, p.WindSpeed, p.ClustersSelected,
			p.WellsCovered, p.EmissionsSampled, p.AvgPOD, p.WellsDetected,
			p.EmissionsDetected, p.MitigationFraction, p.FlightDays,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy plan: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush plan copy: %w", err)
	}
	return stmt.Close()
}

// GetRun retrieves a run by ID, or nil if there is none
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := db.QueryRowContext(ctx, `
		SELECT run_id, policy, iterations, periods, seed, target_fraction,
		       sources, clusters, noise_wells, total_emission_kgh,
		       detected_mean, detected_std, mitigation_mean, mitigation_ci_low, mitigation_ci_high,
		       avg_pod_mean, unflyable_periods, record, started_at, finished_at, created_at
		FROM simulation_runs
		WHERE run_id = $1
	`, runID).Scan(
		&r.RunID, &r.Policy, &r.Iterations, &r.Periods, &r.Seed, &r.TargetFraction,
		&r.Sources, &r.Clusters, &r.NoiseWells, &r.TotalEmission,
		&r.DetectedMean, &r.DetectedStd, &r.MitigationMean, &r.MitigationCILow, &r.MitigationCIHigh,
		&r.AvgPODMean, &r.UnflyablePeriods, &r.Record, &r.StartedAt, &r.FinishedAt, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetPolicySummaries lists the rolled-up results of every policy
func (db *DB) GetPolicySummaries(ctx context.Context) ([]*PolicySummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT policy, runs, mitigation_mean, mitigation_min, mitigation_max,
		       detected_mean, avg_pod_mean, last_run_at, updated_at
		FROM policy_summary
		ORDER BY mitigation_mean DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PolicySummary
	for rows.Next() {
		var s PolicySummary
		if err := rows.Scan(
			&s.Policy, &s.Runs, &s.MitigationMean, &s.MitigationMin, &s.MitigationMax,
			&s.DetectedMean, &s.AvgPODMean, &s.LastRunAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
