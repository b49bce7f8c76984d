package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.Survey
	assert.Equal(t, 0.8, s.EpsKm)
	assert.Equal(t, 2, s.MinClusterSize)
	assert.Equal(t, 2*time.Minute, s.DwellBase)
	assert.Equal(t, 30*time.Second, s.DwellPerMember)
	assert.Equal(t, "random", s.Policy)
	assert.Equal(t, 0.2, s.TargetFraction)
	assert.Equal(t, []string{"uniform:1:6", "uniform:1:6", "uniform:1:6", "uniform:1:6"}, s.Wind)
	assert.Equal(t, 1.27, s.BaselineThreshold)
	assert.Equal(t, 48.75, s.DayBudget)
	assert.Zero(t, s.WellsPerDay)
	assert.Equal(t, int64(0), s.Seed)
	assert.Equal(t, "survey.runs", cfg.Kafka.TopicRuns)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PERIODS", "2")
	t.Setenv("WIND_DEFAULT", "const:3")
	t.Setenv("WIND_Q2", "weibull:2:4")
	t.Setenv("SELECTION_POLICY", "rotation")
	t.Setenv("RANDOM_SEED", "12345678901")
	t.Setenv("DWELL_BASE", "3m")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ITERATIONS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"const:3", "weibull:2:4"}, cfg.Survey.Wind)
	assert.Equal(t, 97.5, cfg.Survey.DayBudget)
	assert.Equal(t, "rotation", cfg.Survey.Policy)
	assert.Equal(t, int64(12345678901), cfg.Survey.Seed)
	assert.Equal(t, 3*time.Minute, cfg.Survey.DwellBase)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	// unparseable values fall back to the default
	assert.Equal(t, 100, cfg.Survey.Iterations)
}

func TestLoadRejectsBadRanges(t *testing.T) {
	for key, value := range map[string]string{
		"MIN_CLUSTER_SIZE": "0",
		"TRAVEL_SPEED_KMH": "-70",
		"POD_FLOOR":        "0.9",
		"TARGET_FRACTION":  "1.5",
		"FLYABLE_WIND_MIN": "7",
		"ITERATIONS":       "0",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if key == "POD_FLOOR" {
				t.Setenv("POD_CEILING", "0.5")
			}
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", d.ConnectionString())
}
