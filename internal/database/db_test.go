package database

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/survey-sim/internal/portfolio"
)

// testDB connects to SURVEYSIM_TEST_DATABASE_URL, skipping when unset.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("SURVEYSIM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SURVEYSIM_TEST_DATABASE_URL not set")
	}
	db, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, file, _, _ := runtime.Caller(0)
	require.NoError(t, db.RunMigrations(filepath.Join(filepath.Dir(file), "..", "..", "migrations")))
	return db
}

func TestRunMigrationsMissingDir(t *testing.T) {
	db := &DB{}
	err := db.RunMigrations(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorContains(t, err, "failed to read migrations directory")
}

func TestSourcesRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	sources := []portfolio.Source{
		{ID: "test-b", Latitude: 41.2, Longitude: -78.1, EmissionKgh: 0.4},
		{ID: "test-a", Latitude: 41.1, Longitude: -78.0, EmissionKgh: 1.3},
	}
	require.NoError(t, db.UpsertSources(ctx, sources))

	sources[0].EmissionKgh = 0.5
	require.NoError(t, db.UpsertSources(ctx, sources[:1]))

	got, err := db.LoadSources(ctx)
	require.NoError(t, err)
	byID := map[string]portfolio.Source{}
	for _, s := range got {
		byID[s.ID] = s
	}
	assert.Equal(t, 0.5, byID["test-b"].EmissionKgh)
	assert.Equal(t, 1.3, byID["test-a"].EmissionKgh)
}

func TestInsertRunIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	run := &Run{
		RunID:          uuid.NewString(),
		Policy:         "random",
		Iterations:     2,
		Periods:        1,
		Seed:           7,
		TargetFraction: 0.2,
		Sources:        10,
		Clusters:       3,
		TotalEmission:  12,
		DetectedMean:   1.5,
		MitigationMean: 0.125,
		Record:         []byte(`{"type":"simulation_run"}`),
		StartedAt:      now,
		FinishedAt:     now.Add(time.Second),
	}
	periods := []*PeriodResult{{Period: 0, DetectedMean: 1.5}}
	plans := []*Plan{
		{Iteration: 0, Period: 0, Status: "surveyed", EmissionsSampled: 4, EmissionsDetected: 1},
		{Iteration: 1, Period: 0, Status: "unflyable"},
	}

	require.NoError(t, db.InsertRun(ctx, run, periods, plans))
	require.NoError(t, db.InsertRun(ctx, run, periods, plans))

	got, err := db.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "random", got.Policy)
	assert.Equal(t, int64(7), got.Seed)
	assert.JSONEq(t, `{"type":"simulation_run"}`, string(got.Record))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM survey_plans WHERE run_id = $1`, run.RunID).Scan(&n))
	assert.Equal(t, 2, n)

	missing, err := db.GetRun(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetPolicySummaries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err := db.ExecContext(ctx, `
		INSERT INTO policy_summary (policy, runs, mitigation_mean, mitigation_min, mitigation_max,
		                            detected_mean, avg_pod_mean, last_run_at)
		VALUES ('test-low', 2, 0.10, 0.08, 0.12, 9, 0.35, $1),
		       ('test-high', 4, 0.90, 0.85, 0.95, 80, 0.6, $1)
		ON CONFLICT (policy) DO UPDATE SET
			runs = EXCLUDED.runs,
			mitigation_mean = EXCLUDED.mitigation_mean,
			mitigation_min = EXCLUDED.mitigation_min,
			mitigation_max = EXCLUDED.mitigation_max
	`, now)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec(`DELETE FROM policy_summary WHERE policy LIKE 'test-%'`)
	})

	sums, err := db.GetPolicySummaries(ctx)
	require.NoError(t, err)

	byPolicy := map[string]*PolicySummary{}
	var order []string
	for _, s := range sums {
		byPolicy[s.Policy] = s
		order = append(order, s.Policy)
	}
	require.Contains(t, byPolicy, "test-high")
	require.Contains(t, byPolicy, "test-low")
	assert.Equal(t, 4, byPolicy["test-high"].Runs)
	assert.Equal(t, 0.85, byPolicy["test-high"].MitigationMin)
	assert.Equal(t, 0.95, byPolicy["test-high"].MitigationMax)
	assert.Less(t, slices.Index(order, "test-high"), slices.Index(order, "test-low"))
}
