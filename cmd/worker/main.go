package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/cluster/localruntime"
	"github.com/weftlabs/weft-backend/internal/data/db"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/platform/redisdb"
	"github.com/weftlabs/weft-backend/internal/queue"
	"github.com/weftlabs/weft-backend/internal/sources"
)

// The worker drains one integration's queue until terminated, fanning each
// parent group out into capped execution jobs. INTEGRATION_ID and NAMESPACE
// arrive in the environment from the deployment.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	integrationID, err := uuid.Parse(os.Getenv("INTEGRATION_ID"))
	if err != nil {
		log.Error("Invalid INTEGRATION_ID", "error", err)
		os.Exit(1)
	}
	namespace := os.Getenv("NAMESPACE")
	if namespace == "" {
		log.Error("Missing NAMESPACE")
		os.Exit(1)
	}

	cfg := pipeline.LoadConfig(log)

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()
	integrationRepo := integrations.NewIntegrationRepo(thePG, log)
	groupRepo := integrations.NewParentGroupRepo(thePG, log)
	jobRepo := integrations.NewProcessingJobRepo(thePG, log)

	rdb, err := redisdb.New(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	groupQueue := queue.NewGroupQueue(rdb, log)
	chunks := queue.NewChunkStore(rdb, cfg.ChunkTTL, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	integration, err := integrationRepo.GetByID(dbctx.New(ctx), integrationID)
	if err != nil {
		log.Error("Load integration failed", "integration_id", integrationID.String(), "error", err)
		os.Exit(1)
	}

	splitter, err := sources.NewSplitter(ctx, integration.Source, log)
	if err != nil {
		log.Error("Splitter init failed", "source", string(integration.Source), "error", err)
		os.Exit(1)
	}

	runtime := localruntime.New(rdb, log)
	defer runtime.Stop()

	worker := pipeline.NewWorker(
		cfg, integrationRepo, groupRepo, jobRepo, groupQueue, chunks, runtime,
		splitter, integrationID, namespace, integration.Source, log)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	log.Info("Worker shut down")
}
