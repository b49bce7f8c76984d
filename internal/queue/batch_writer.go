package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/survey-sim/internal/database"
	"github.com/smukkama/survey-sim/internal/log"
	"github.com/smukkama/survey-sim/internal/protocol"
)

// RunStore persists decoded run records
type RunStore interface {
	InsertRun(ctx context.Context, run *database.Run, periods []*database.PeriodResult, plans []*database.Plan) error
}

// MessageSource yields and acknowledges Kafka messages
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// BatchWriter consumes run records from Kafka and batch-writes them to the
// database
type BatchWriter struct {
	consumer      MessageSource
	store         RunStore
	batchSize     int
	flushInterval time.Duration
	onFlush       func(ctx context.Context, written int)
	logger        *log.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer MessageSource, store RunStore, batchSize int, flushInterval time.Duration, logger *log.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 10
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchWriter{
		consumer:      consumer,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// OnFlush registers a callback run after every flush that wrote at least
// one record.
func (bw *BatchWriter) OnFlush(fn func(ctx context.Context, written int)) {
	bw.onFlush = fn
}

// Start begins consuming and writing to database
func (bw *BatchWriter) Start(ctx context.Context) error {
	bw.wg.Add(1)
	go bw.run(ctx)
	return nil
}

// Stop stops the batch writer gracefully
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgChan := make(chan kafka.Message, bw.batchSize)
	go func() {
		for {
			msg, err := bw.consumer.Consume(consumeCtx)
			if err != nil {
				if consumeCtx.Err() != nil {
					return
				}
				bw.logger.Warnf("consumer error: %v", err)
				continue
			}
			select {
			case msgChan <- msg:
			case <-consumeCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-bw.stopCh:
			if _, left := bw.flush(ctx, batch); len(left) > 0 {
				bw.logger.Warn("stopping with unstored run records", "pending", len(left))
			}
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.logger.Debugf("flush interval reached (%d messages), flushing", len(batch))
				_, batch = bw.flush(ctx, batch)
			}

		case msg := <-msgChan:
			bw.logger.Debugf("consumed run record (partition=%d, offset=%d)", msg.Partition, msg.Offset)
			batch = append(batch, msg)

			if len(batch) >= bw.batchSize {
				bw.logger.Debugf("batch full (%d messages), flushing", len(batch))
				_, batch = bw.flush(ctx, batch)
			}
		}
	}
}

// flush stores the batch in order and commits each stored message. It
// stops at the first store failure and returns that message and everything
// after it, uncommitted, for the next flush; committing a later offset
// would acknowledge the failed one too. Messages that do not decode are
// committed and dropped since retrying cannot fix them.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) (int, []kafka.Message) {
	if len(batch) == 0 {
		return 0, nil
	}

	successCount := 0
	var left []kafka.Message
	for i, msg := range batch {
		rec, err := protocol.DecodeRunRecord(msg.Value)
		if err != nil {
			bw.logger.Warnf("dropping undecodable message at offset %d: %v", msg.Offset, err)
		} else if err := bw.save(ctx, rec, msg.Value); err != nil {
			bw.logger.Warnf("failed to store run %s, retrying %d messages later: %v", rec.RunID, len(batch)-i, err)
			left = batch[i:]
			break
		} else {
			successCount++
		}

		if err := bw.consumer.Commit(ctx, msg); err != nil {
			bw.logger.Warnf("failed to commit offset %d: %v", msg.Offset, err)
		}
	}

	bw.logger.Info("flushed run records", "stored", successCount, "pending", len(left))
	if successCount > 0 && bw.onFlush != nil {
		bw.onFlush(ctx, successCount)
	}
	return successCount, left
}

func (bw *BatchWriter) save(ctx context.Context, rec *protocol.RunRecord, raw []byte) error {
	run, periods, plans := RowsFromRecord(rec, raw)
	if err := bw.store.InsertRun(ctx, run, periods, plans); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}
	return nil
}

// RowsFromRecord flattens a run record into database rows. raw is stored
// verbatim as the run's JSON record.
func RowsFromRecord(rec *protocol.RunRecord, raw []byte) (*database.Run, []*database.PeriodResult, []*database.Plan) {
	a := rec.Annual
	run := &database.Run{
		RunID:            rec.RunID,
		Policy:           rec.Config.Policy,
		Iterations:       rec.Config.Iterations,
		Periods:          rec.Config.Periods,
		Seed:             rec.Config.Seed,
		TargetFraction:   rec.Config.TargetFraction,
		Sources:          rec.Portfolio.Sources,
		Clusters:         rec.Portfolio.Clusters,
		NoiseWells:       rec.Portfolio.NoiseWells,
		TotalEmission:    rec.Portfolio.TotalEmission,
		DetectedMean:     a.EmissionsDetected.Mean,
		DetectedStd:      a.EmissionsDetected.Std,
		MitigationMean:   a.MitigationFraction.Mean,
		MitigationCILow:  a.MitigationFraction.CILow,
		MitigationCIHigh: a.MitigationFraction.CIHigh,
		AvgPODMean:       a.AvgPOD.Mean,
		UnflyablePeriods: a.UnflyablePeriods,
		Record:           raw,
		StartedAt:        rec.StartedAt,
		FinishedAt:       rec.FinishedAt,
	}

	periods := make([]*database.PeriodResult, 0, len(rec.Periods))
	for _, p := range rec.Periods {
		periods = append(periods, &database.PeriodResult{
			RunID:          rec.RunID,
			Period:         p.Period,
			ClustersMean:   p.ClustersSelected.Mean,
			WellsMean:      p.WellsCovered.Mean,
			SampledMean:    p.EmissionsSampled.Mean,
			DetectedMean:   p.EmissionsDetected.Mean,
			DetectedStd:    p.EmissionsDetected.Std,
			AvgPODMean:     p.AvgPOD.Mean,
			MitigationMean: p.MitigationFraction.Mean,
			WindMean:       p.WindSpeed.Mean,
			Unflyable:      p.UnflyablePeriods,
		})
	}

	var plans []*database.Plan
	for _, it := range rec.Iterations {
		for _, p := range it.Plans {
			plans = append(plans, &database.Plan{
				RunID:              rec.RunID,
				Iteration:          it.Index,
				Period:             p.Period,
				Status:             p.Status,
				WindSpeed:          p.WindSpeed,
				ClustersSelected:   p.ClustersSelected,
				WellsCovered:       p.WellsCovered,
				EmissionsSampled:   p.EmissionsSampled,
				AvgPOD:             p.AvgPOD,
				WellsDetected:      p.WellsDetected,
				EmissionsDetected:  p.EmissionsDetected,
				MitigationFraction: p.MitigationFraction,
				FlightDays:         p.FlightDays,
			})
		}
	}
	return run, periods, plans
}
