package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-ops/internal/config"
	"go-ops/internal/database"
	"go-ops/internal/features/queue"
)

// One-shot retention sweep. The API server runs the same sweep on a cron
// schedule; this binary exists for manual runs and ops scripting.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	retentionDays := flag.Int("retention-days", cfg.RetentionDays, "delete terminal queues older than this many days")
	reclaim := flag.Bool("reclaim", true, "also return stale processing lines to draft")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := &database.MongodbDB{DB: client.Database(cfg.DBName)}
	queueRepo := queue.NewQueueRepository(db)
	lineRepo := queue.NewLineRepository(db)

	cutoff := time.Now().AddDate(0, 0, -*retentionDays)
	ids, err := queueRepo.ListDeletable(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to list deletable queues: %v", err)
	}

	lines, err := lineRepo.DeleteByQueueIDs(ctx, ids)
	if err != nil {
		log.Fatalf("Failed to delete queue lines: %v", err)
	}
	queues, err := queueRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		log.Fatalf("Failed to delete queues: %v", err)
	}

	fmt.Printf("Deleted %d queues and %d lines older than %d days\n", queues, lines, *retentionDays)

	if *reclaim {
		staleCutoff := time.Now().Add(-time.Duration(cfg.StaleAfterMinutes) * time.Minute)
		reclaimed, err := lineRepo.ReclaimStale(ctx, staleCutoff)
		if err != nil {
			log.Fatalf("Failed to reclaim stale lines: %v", err)
		}
		fmt.Printf("Reclaimed %d stale processing lines\n", reclaimed)
	}

	fmt.Println("Cleanup complete.")
}
