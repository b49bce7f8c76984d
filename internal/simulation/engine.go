package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/log"
	"github.com/smukkama/survey-sim/internal/portfolio"
	"github.com/smukkama/survey-sim/internal/rand"
	"github.com/smukkama/survey-sim/internal/schedule"
)

// Engine runs Monte Carlo survey simulations for one validated Config.
// An Engine holds no per-run state and may run concurrently.
type Engine struct {
	cfg    Config
	policy schedule.Policy
	logger *log.Logger
	now    func() time.Time
}

// New validates cfg and returns an engine for it. logger may be nil.
func New(cfg Config, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := schedule.ParsePolicy(cfg.Policy, cfg.Strata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Engine{cfg: cfg, policy: policy, logger: logger, now: time.Now}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// job is one iteration to simulate
type job struct {
	index int
}

// worker simulates iterations taken from jobQueue
type worker struct {
	id       int
	engine   *Engine
	jobQueue <-chan job
	env      *environment
	results  []Iteration
}

// environment is the read-only input every iteration shares
type environment struct {
	seed              int64
	clusters          []*cluster.Cluster
	portfolioEmission float64
}

// Run simulates cfg.Iterations independent campaigns over the clustered
// portfolio. Each iteration draws from its own PCG stream of the run seed,
// so results do not depend on worker count or scheduling. If ctx is
// cancelled, partial results are discarded and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context, sources []portfolio.Source, res *cluster.Result) (*Run, error) {
	if res == nil {
		return nil, errors.New("no clustering result")
	}

	run := &Run{
		ID:      uuid.New(),
		Config:  e.cfg,
		Seed:    e.cfg.Seed,
		Started: e.now(),
	}
	for run.Seed == 0 {
		run.Seed = e.now().UnixNano()
	}
	run.Config.Seed = run.Seed

	stats := res.Stats()
	run.Portfolio = Portfolio{
		Sources:        len(sources),
		Emission:       portfolio.TotalEmission(sources),
		Clusters:       stats.Clusters,
		ClusteredWells: stats.ClusteredWells,
		NoiseWells:     stats.NoiseWells,
		Cluster:        stats,
	}

	env := &environment{
		seed:              run.Seed,
		clusters:          res.Clusters,
		portfolioEmission: run.Portfolio.Emission,
	}

	workers := e.cfg.workers()
	e.logger.Info("simulation started",
		"run_id", run.ID,
		"seed", run.Seed,
		"policy", run.Config.Policy,
		"iterations", run.Config.Iterations,
		"periods", run.Config.Periods,
		"clusters", run.Portfolio.Clusters,
		"workers", workers)

	iterations := make([]Iteration, e.cfg.Iterations)
	jobQueue := make(chan job, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobQueue)
		for i := 0; i < e.cfg.Iterations; i++ {
			select {
			case jobQueue <- job{index: i}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for id := 0; id < workers; id++ {
		w := &worker{id: id, engine: e, jobQueue: jobQueue, env: env, results: iterations}
		g.Go(func() error { return w.start(gctx) })
	}

	if err := g.Wait(); err != nil {
		e.logger.Warn("simulation aborted", "run_id", run.ID, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run.Iterations = iterations
	run.reduce()
	run.Finished = e.now()

	e.logger.Info("simulation finished",
		"run_id", run.ID,
		"elapsed", run.Duration(),
		"mitigation_mean", run.Annual.MitigationFraction.Mean,
		"detected_mean", run.Annual.EmissionsDetected.Mean)
	return run, nil
}

// start processes jobs until the queue closes or ctx is done. Each
// iteration writes only its own slot of results.
func (w *worker) start(ctx context.Context) error {
	for j := range w.jobQueue {
		if err := ctx.Err(); err != nil {
			return err
		}
		it, err := w.engine.iterate(j.index, w.env)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", j.index, err)
		}
		w.results[j.index] = it
	}
	return nil
}

// iterate simulates one campaign with a fresh scheduler, so rotation state
// never leaks between iterations.
func (e *Engine) iterate(index int, env *environment) (Iteration, error) {
	r := rand.New(env.seed, uint64(index))
	sched, err := schedule.New(env.clusters, e.policy, e.cfg.Estimator, e.cfg.Model, e.cfg.Schedule, env.portfolioEmission)
	if err != nil {
		return Iteration{}, err
	}

	plans := make([]*schedule.Plan, 0, e.cfg.Periods)
	for p := 0; p < e.cfg.Periods; p++ {
		w := e.cfg.Wind.Draw(p, r)
		plan := sched.PlanPeriod(p, w, r)
		if plan.Status != schedule.StatusSurveyed {
			e.logger.Debug("period not surveyed",
				"iteration", index, "period", p, "status", plan.Status, "wind", w.SpeedMS)
		}
		plans = append(plans, plan)
	}
	return Iteration{Index: index, Plans: plans, Totals: totals(plans, env.portfolioEmission)}, nil
}
