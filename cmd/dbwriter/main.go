package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/survey-sim/internal/aggregation"
	"github.com/smukkama/survey-sim/internal/database"
	logging "github.com/smukkama/survey-sim/internal/log"
	"github.com/smukkama/survey-sim/internal/queue"
	"github.com/smukkama/survey-sim/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Dir)

	fmt.Println("Starting Database Writer Service...")
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.NumPartitions, 1); err != nil {
		// the topic usually exists already
		logger.Debug("create topic", "topic", cfg.Kafka.TopicRuns, "error", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.GroupID)
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	// Policy summaries are refreshed after writes, at most once per interval
	rollup := aggregation.NewPolicyRollup(db)
	var lastRollup time.Time
	batchWriter := queue.NewBatchWriter(consumer, db, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval, logger.With("component", "batch_writer"))
	batchWriter.OnFlush(func(ctx context.Context, written int) {
		if time.Since(lastRollup) < cfg.Rollup.Interval {
			return
		}
		if _, err := rollup.Aggregate(ctx, lastRollup); err != nil {
			logger.Error("policy rollup failed", "error", err)
			return
		}
		lastRollup = time.Now()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := batchWriter.Start(ctx); err != nil {
		log.Fatalf("Failed to start batch writer: %v", err)
	}
	fmt.Println("Batch writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				logger.Info("consumer stats",
					"messages", stats.Messages, "bytes", stats.Bytes, "errors", stats.Errors)
			}
		}
	}()

	fmt.Println("\n✓ Database Writer Service is running")
	fmt.Printf("✓ Consuming run records from %s and writing to PostgreSQL\n", cfg.Kafka.TopicRuns)
	fmt.Printf("✓ Batch size: %d records | Flush interval: %s\n", cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for messages...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	batchWriter.Stop()
	fmt.Println("Database Writer Service stopped")
}
