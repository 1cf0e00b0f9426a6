// Command batch-processor re-runs the specification pipeline over files
// already present in an upload bucket, for backfills after outages or
// pipeline changes. Executions are independent, so objects are processed
// concurrently up to a configurable limit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mlewis7127/specflow/internal/gcp"
	"github.com/mlewis7127/specflow/internal/models"
	"github.com/mlewis7127/specflow/internal/services"
)

func main() {
	bucket := flag.String("bucket", "", "upload bucket to scan (required)")
	prefix := flag.String("prefix", "", "object key prefix to limit the scan")
	concurrency := flag.Int("concurrency", 4, "maximum concurrent executions")
	flag.Parse()

	if err := run(*bucket, *prefix, *concurrency); err != nil {
		fmt.Fprintf(os.Stderr, "batch-processor: %v\n", err)
		os.Exit(1)
	}
}

func run(bucket, prefix string, concurrency int) error {
	if bucket == "" {
		return fmt.Errorf("-bucket is required")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	// Local runs keep their environment in a .env file; absence is fine.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	coordinator, err := services.NewCoordinatorFromEnv(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	store, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	defer store.Close()

	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	logger.Info("Starting backfill.",
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.Int("objectCount", len(objects)),
		zap.Int("concurrency", concurrency))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for _, obj := range objects {
		ref := models.FileReference{
			Bucket:    bucket,
			Key:       obj.Key,
			Size:      obj.Size,
			ETag:      obj.ETag,
			EventTime: obj.Created,
		}
		eg.Go(func() error {
			// A failed execution already notified its subscribers; it
			// should not stop the rest of the batch.
			if _, err := coordinator.Run(gctx, ref); err != nil {
				logger.Warn("Backfill execution failed.", zap.String("key", ref.Key), zap.Error(err))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("Backfill complete.", zap.Int("objectCount", len(objects)))
	return nil
}
