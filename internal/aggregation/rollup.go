package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/smukkama/survey-sim/internal/database"
)

// PolicyRollup maintains policy_summary from the stored runs
type PolicyRollup struct {
	db *database.DB
}

// NewPolicyRollup creates a new policy rollup
func NewPolicyRollup(db *database.DB) *PolicyRollup {
	return &PolicyRollup{db: db}
}

// Aggregate recomputes the summary of every policy with runs finished
// since the given time. A zero time recomputes all policies.
func (p *PolicyRollup) Aggregate(ctx context.Context, since time.Time) (int64, error) {
	query := `
		INSERT INTO policy_summary (
			policy, runs,
			mitigation_mean, mitigation_min, mitigation_max,
			detected_mean, avg_pod_mean, last_run_at
		)
		SELECT
			policy,
			COUNT(*) AS runs,
			AVG(mitigation_mean) AS mitigation_mean,
			MIN(mitigation_mean) AS mitigation_min,
			MAX(mitigation_mean) AS mitigation_max,
			AVG(detected_mean) AS detected_mean,
			AVG(avg_pod_mean) AS avg_pod_mean,
			MAX(finished_at) AS last_run_at
		FROM
			simulation_runs
		WHERE
			policy IN (SELECT DISTINCT policy FROM simulation_runs WHERE finished_at >= $1)
		GROUP BY
			policy
		ON CONFLICT (policy) DO UPDATE
		SET
			runs = EXCLUDED.runs,
			mitigation_mean = EXCLUDED.mitigation_mean,
			mitigation_min = EXCLUDED.mitigation_min,
			mitigation_max = EXCLUDED.mitigation_max,
			detected_mean = EXCLUDED.detected_mean,
			avg_pod_mean = EXCLUDED.avg_pod_mean,
			last_run_at = EXCLUDED.last_run_at,
			updated_at = CURRENT_TIMESTAMP
	`

	result, err := p.db.ExecContext(ctx, query, since)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate policy summary: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	fmt.Printf("Policy rollup completed: %d policies updated\n", rowsAffected)
	return rowsAffected, nil
}
