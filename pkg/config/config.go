package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig wraps every error returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Survey   SurveyConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
	Rollup   RollupConfig
}

// SurveyConfig holds the simulation parameters
type SurveyConfig struct {
	// Clustering
	EpsKm          float64
	MinClusterSize int

	// Capacity
	DayBudget         float64 // fleet flight-days per period, 0 = unlimited
	WellsPerDay       float64
	DwellBase         time.Duration
	DwellPerMember    time.Duration
	TravelSpeedKmh    float64
	FlightHoursPerDay float64
	Aircraft          float64

	// Scheduling
	Policy         string
	TargetFraction float64
	Strata         int
	Periods        int
	DetectionMode  string

	// Wind, one distribution spec per period
	Wind         []string
	WindTMYFile  string
	WindMode     string
	WindMaxDraws int
	FlyableMin   float64
	FlyableMax   float64

	// Detection
	BaselineThreshold float64
	BaselineWind      float64
	WindSensitivity   float64
	PODSteepness      float64
	PODCalibration    float64
	PODFloor          float64
	PODCeiling        float64

	// Monte Carlo
	Iterations int
	Seed       int64
	CIMethod   string
	Workers    int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	TopicRuns     string
	NumPartitions int
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

type LogConfig struct {
	Level string
	Dir   string
}

type RollupConfig struct {
	Interval time.Duration
}

// FlightDaysPerYear is the fleet's annual flying allowance, split evenly
// across periods when DAY_BUDGET_PER_PERIOD is unset.
const FlightDaysPerYear = 195

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	periods := getEnvAsInt("PERIODS", 4)
	dayBudget := 0.0
	if periods > 0 {
		dayBudget = FlightDaysPerYear / float64(periods)
	}
	defaultWind := getEnv("WIND_DEFAULT", "uniform:1:6")
	wind := make([]string, 0, periods)
	for q := 1; q <= periods; q++ {
		wind = append(wind, getEnv(fmt.Sprintf("WIND_Q%d", q), defaultWind))
	}

	config := &Config{
		Survey: SurveyConfig{
			EpsKm:          getEnvAsFloat("EPS_DISTANCE_KM", 0.8),
			MinClusterSize: getEnvAsInt("MIN_CLUSTER_SIZE", 2),

			DayBudget:         getEnvAsFloat("DAY_BUDGET_PER_PERIOD", dayBudget),
			WellsPerDay:       getEnvAsFloat("WELLS_PER_DAY_CAPACITY", 0),
			DwellBase:         getEnvAsDuration("DWELL_BASE", 2*time.Minute),
			DwellPerMember:    getEnvAsDuration("DWELL_PER_MEMBER", 30*time.Second),
			TravelSpeedKmh:    getEnvAsFloat("TRAVEL_SPEED_KMH", 70),
			FlightHoursPerDay: getEnvAsFloat("FLIGHT_HOURS_PER_DAY", 8),
			Aircraft:          getEnvAsFloat("AIRCRAFT", 2.7),

			Policy:         getEnv("SELECTION_POLICY", "random"),
			TargetFraction: getEnvAsFloat("TARGET_FRACTION", 0.2),
			Strata:         getEnvAsInt("STRATA", 4),
			Periods:        periods,
			DetectionMode:  getEnv("DETECTION_MODE", "bernoulli"),

			Wind:         wind,
			WindTMYFile:  getEnv("WIND_TMY_FILE", ""),
			WindMode:     getEnv("WIND_MODE", "redraw"),
			WindMaxDraws: getEnvAsInt("WIND_MAX_DRAWS", 100),
			FlyableMin:   getEnvAsFloat("FLYABLE_WIND_MIN", 1),
			FlyableMax:   getEnvAsFloat("FLYABLE_WIND_MAX", 6),

			BaselineThreshold: getEnvAsFloat("BASELINE_THRESHOLD", 1.27),
			BaselineWind:      getEnvAsFloat("BASELINE_WIND", 3.5),
			WindSensitivity:   getEnvAsFloat("WIND_SENSITIVITY", 0.3),
			PODSteepness:      getEnvAsFloat("POD_STEEPNESS", 2),
			PODCalibration:    getEnvAsFloat("POD_CALIBRATION", 0),
			PODFloor:          getEnvAsFloat("POD_FLOOR", 0.001),
			PODCeiling:        getEnvAsFloat("POD_CEILING", 0.999),

			Iterations: getEnvAsInt("ITERATIONS", 100),
			Seed:       getEnvAsInt64("RANDOM_SEED", 0),
			CIMethod:   getEnv("CI_METHOD", "normal"),
			Workers:    getEnvAsInt("WORKERS", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "survey_user"),
			Password: getEnv("DB_PASSWORD", "survey_pass"),
			DBName:   getEnv("DB_NAME", "survey_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("CLUSTER_CACHE_TTL", 7*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicRuns:     getEnv("KAFKA_TOPIC_RUNS", "survey.runs"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 4),
			GroupID:       getEnv("KAFKA_GROUP_ID", "dbwriter-group"),
			BatchSize:     getEnvAsInt("DBWRITER_BATCH_SIZE", 10),
			FlushInterval: getEnvAsDuration("DBWRITER_FLUSH_INTERVAL", 5*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dir:   getEnv("LOG_DIR", ""),
		},
		Rollup: RollupConfig{
			Interval: getEnvAsDuration("ROLLUP_INTERVAL", time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the ranges of the survey settings. It does not check
// policy or distribution names; the simulation rejects those.
func (c *Config) Validate() error {
	s := c.Survey
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case !(s.EpsKm > 0):
		return fail("EPS_DISTANCE_KM must be positive, got %v", s.EpsKm)
	case s.MinClusterSize < 1:
		return fail("MIN_CLUSTER_SIZE must be at least 1, got %d", s.MinClusterSize)
	case s.DayBudget < 0 || s.WellsPerDay < 0:
		return fail("day and well budgets must not be negative")
	case s.DwellBase < 0 || s.DwellPerMember < 0:
		return fail("dwell times must not be negative")
	case !(s.TravelSpeedKmh > 0):
		return fail("TRAVEL_SPEED_KMH must be positive, got %v", s.TravelSpeedKmh)
	case !(s.FlightHoursPerDay > 0) || s.FlightHoursPerDay > 24:
		return fail("FLIGHT_HOURS_PER_DAY must be in (0,24], got %v", s.FlightHoursPerDay)
	case !(s.Aircraft > 0):
		return fail("AIRCRAFT must be positive, got %v", s.Aircraft)
	case !(s.TargetFraction > 0) || s.TargetFraction > 1:
		return fail("TARGET_FRACTION must be in (0,1], got %v", s.TargetFraction)
	case s.Periods < 1:
		return fail("PERIODS must be at least 1, got %d", s.Periods)
	case s.FlyableMin < 0 || s.FlyableMin > s.FlyableMax:
		return fail("flyable wind range [%v, %v] is empty", s.FlyableMin, s.FlyableMax)
	case !(s.BaselineThreshold > 0):
		return fail("BASELINE_THRESHOLD must be positive, got %v", s.BaselineThreshold)
	case s.PODFloor < 0 || s.PODCeiling > 1 || s.PODFloor > s.PODCeiling:
		return fail("need 0 <= POD_FLOOR <= POD_CEILING <= 1, got %v and %v", s.PODFloor, s.PODCeiling)
	case s.Iterations < 1:
		return fail("ITERATIONS must be at least 1, got %d", s.Iterations)
	case s.Workers < 0:
		return fail("WORKERS must not be negative, got %d", s.Workers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		warnInvalid(key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		warnInvalid(key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		warnInvalid(key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		warnInvalid(key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func warnInvalid(key, value string, defaultValue any) {
	fmt.Fprintf(os.Stderr, "Warning: invalid %s=%q, using default %v\n", key, value, defaultValue)
}
