// backfill-embeddings computes embeddings for posts stored while the embedding
// provider was unavailable. Posts that still fail keep a NULL embedding and are
// picked up by the next run.
//
// Usage: go run ./scripts/backfill-embeddings [-batch 50] [-timeout 30m]
//
// Configuration: same config.yaml and environment variables as the server
// (PG*, EMBEDDING_BASE_URL, EMBEDDING_MODEL, EMBEDDING_API_KEY).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/embedding"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

func main() {
	batch := flag.Int("batch", 50, "Posts fetched per batch")
	timeout := flag.Duration("timeout", 30*time.Minute, "Maximum run time")
	flag.Parse()

	if err := run(*batch, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(batch int, timeout time.Duration) error {
	cfg, err := config.Load("backfill")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Embedding.IsAvailable() {
		return fmt.Errorf("embedding provider not configured (set EMBEDDING_BASE_URL and EMBEDDING_MODEL)")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: 2,
		RegisterVector: true,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder, err := embedding.NewClient(cfg.Embedding, logger)
	if err != nil {
		return err
	}

	backfill := services.NewEmbeddingBackfill(repositories.NewPostRepository(), embedder, logger)
	result, err := backfill.Run(database.SetPool(ctx, db.Pool), batch)

	fmt.Printf("Scanned:  %d\n", result.Scanned)
	fmt.Printf("Embedded: %d\n", result.Embedded)
	fmt.Printf("Failed:   %d\n", result.Failed)
	return err
}
