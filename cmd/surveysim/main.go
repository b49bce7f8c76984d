package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/survey-sim/internal/aggregation"
	"github.com/smukkama/survey-sim/internal/cache"
	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/database"
	logging "github.com/smukkama/survey-sim/internal/log"
	"github.com/smukkama/survey-sim/internal/portfolio"
	"github.com/smukkama/survey-sim/internal/protocol"
	"github.com/smukkama/survey-sim/internal/queue"
	"github.com/smukkama/survey-sim/internal/simulation"
	"github.com/smukkama/survey-sim/pkg/config"
)

func main() {
	var (
		input      = flag.String("input", "", "CSV file of sources (id, latitude, longitude, emission)")
		fromDB     = flag.Bool("from-db", false, "load sources from the database instead of -input")
		storeSrc   = flag.Bool("store-sources", false, "upsert the -input sources into the database")
		output     = flag.String("output", "", "write the run record here instead of stdout")
		withPlans  = flag.Bool("plans", false, "include every iteration's plans in the record")
		useCache   = flag.Bool("cache", true, "cache clustering results in Redis")
		publish    = flag.Bool("publish", false, "publish the run record to Kafka")
		persist    = flag.Bool("persist", false, "write the run to the database directly")
		years      = flag.Int("years", 0, "print a multi-year projection of the annual programme")
		policy     = flag.String("policy", "", "override SELECTION_POLICY")
		iterations = flag.Int("iterations", 0, "override ITERATIONS")
		seed       = flag.Int64("seed", 0, "override RANDOM_SEED")
		compare    = flag.Bool("compare", false, "refresh and print the per-policy comparison of stored runs, then exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *policy != "" {
		cfg.Survey.Policy = *policy
	}
	if *iterations > 0 {
		cfg.Survey.Iterations = *iterations
	}
	if *seed != 0 {
		cfg.Survey.Seed = *seed
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Dir)

	if *compare {
		if err := comparePolicies(cfg); err != nil {
			log.Fatalf("Failed to compare policies: %v", err)
		}
		return
	}

	simCfg, err := simulation.FromConfig(cfg.Survey)
	if err != nil {
		log.Fatalf("Failed to build simulation config: %v", err)
	}
	engine, err := simulation.New(simCfg, logger)
	if err != nil {
		log.Fatalf("Invalid simulation config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var db *database.DB
	if *fromDB || *storeSrc || *persist {
		db, err = database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.RunMigrations("migrations"); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	sources, err := loadSources(ctx, *input, db, *fromDB)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d sources (%.1f kg/h)\n", len(sources), portfolio.TotalEmission(sources))

	if *storeSrc && !*fromDB {
		if err := db.UpsertSources(ctx, sources); err != nil {
			log.Fatalf("Failed to store sources: %v", err)
		}
		fmt.Fprintln(os.Stderr, "Stored sources in database")
	}

	if len(simCfg.WindRecord) > 0 {
		fmt.Fprintf(os.Stderr, "Wind record: %d hours, %.1f%% flyable\n",
			len(simCfg.WindRecord), 100*simCfg.FlyableFraction())
	}

	res, err := clusterSources(ctx, cfg, sources, simCfg.Cluster, *useCache, logger)
	if err != nil {
		log.Fatalf("Failed to cluster sources: %v", err)
	}
	st := res.Stats()
	fmt.Fprintf(os.Stderr, "Clusters: %d (%d wells, %.1f per cluster), noise wells: %d\n",
		st.Clusters, st.ClusteredWells, st.MeanWellsPerCluster, st.NoiseWells)

	fmt.Fprintf(os.Stderr, "Running %d iterations of %s policy...\n", simCfg.Iterations, simCfg.Policy)
	run, err := engine.Run(ctx, sources, res)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	a := run.Annual
	fmt.Fprintf(os.Stderr, "Annual detected: %s kg/h\n", a.EmissionsDetected)
	fmt.Fprintf(os.Stderr, "Annual mitigation: %.2f%% (95%% CI %.2f%%–%.2f%%)\n",
		100*a.MitigationFraction.Mean, 100*a.MitigationFraction.CILow, 100*a.MitigationFraction.CIHigh)

	rec := protocol.FromRun(run, *withPlans)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode run record: %v", err)
	}
	if err := writeOutput(*output, data); err != nil {
		log.Fatalf("Failed to write run record: %v", err)
	}

	if *years > 0 {
		proj, err := simulation.Project(run, *years)
		if err != nil {
			log.Fatalf("Failed to project: %v", err)
		}
		fmt.Fprintf(os.Stderr, "%-6s %-14s %-14s %-14s\n", "Year", "Annual", "Cumulative", "Compounded")
		for _, p := range proj {
			fmt.Fprintf(os.Stderr, "%-6d %13.2f%% %13.2f%% %13.2f%%\n",
				p.Year, 100*p.AnnualMitigation, 100*p.CumulativeLinear, 100*p.CumulativeCompounded)
		}
	}

	if *publish {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns)
		defer producer.Close()
		if err := producer.PublishRun(ctx, rec); err != nil {
			log.Fatalf("Failed to publish run record: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Published run %s to %s\n", rec.RunID, cfg.Kafka.TopicRuns)
	}

	if *persist {
		raw, err := protocol.EncodeRunRecord(rec)
		if err != nil {
			log.Fatalf("Failed to encode run record: %v", err)
		}
		row, periods, plans := queue.RowsFromRecord(rec, raw)
		if err := db.InsertRun(ctx, row, periods, plans); err != nil {
			log.Fatalf("Failed to persist run: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Stored run %s\n", rec.RunID)
	}
}

// comparePolicies refreshes policy_summary from every stored run and
// prints it.
func comparePolicies(cfg *config.Config) error {
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.RunMigrations("migrations"); err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := aggregation.NewPolicyRollup(db).Aggregate(ctx, time.Time{}); err != nil {
		return err
	}
	sums, err := db.GetPolicySummaries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read policy summaries: %w", err)
	}
	printComparison(os.Stdout, sums)
	return nil
}

func printComparison(w io.Writer, sums []*database.PolicySummary) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "No stored runs to compare")
		return
	}
	fmt.Fprintf(w, "%-12s %5s %11s %11s %11s %14s %8s\n",
		"Policy", "Runs", "Mitigation", "Min", "Max", "Detected kg/h", "POD")
	for _, s := range sums {
		fmt.Fprintf(w, "%-12s %5d %10.2f%% %10.2f%% %10.2f%% %14.2f %8.3f\n",
			s.Policy, s.Runs, 100*s.MitigationMean, 100*s.MitigationMin, 100*s.MitigationMax,
			s.DetectedMean, s.AvgPODMean)
	}
}

func loadSources(ctx context.Context, input string, db *database.DB, fromDB bool) ([]portfolio.Source, error) {
	if fromDB {
		return db.LoadSources(ctx)
	}
	if input == "" {
		return nil, fmt.Errorf("either -input or -from-db is required")
	}
	return portfolio.LoadCSV(input)
}

func clusterSources(ctx context.Context, cfg *config.Config, sources []portfolio.Source, p cluster.Params, useCache bool, logger *logging.Logger) (*cluster.Result, error) {
	if !useCache {
		return cluster.DBSCAN(sources, p)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, clustering without cache", "error", err)
		return cluster.DBSCAN(sources, p)
	}

	res, hit, err := cache.NewClusterCache(client, cfg.Redis.CacheTTL, logger).GetOrCluster(ctx, sources, p)
	if err == nil && hit {
		fmt.Fprintln(os.Stderr, "Clusters loaded from cache")
	}
	return res, err
}

func writeOutput(path string, data []byte) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
