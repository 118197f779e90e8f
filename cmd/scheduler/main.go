package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/data/db"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/platform/redisdb"
	"github.com/weftlabs/weft-backend/internal/queue"
	"github.com/weftlabs/weft-backend/internal/sources"
)

// The scheduler runs one discovery pass for a single integration and exits.
// It is launched on the integration's refresh schedule with INTEGRATION_ID
// and NAMESPACE in the environment.
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

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()
	integrationRepo := integrations.NewIntegrationRepo(thePG, log)
	groupRepo := integrations.NewParentGroupRepo(thePG, log)

	rdb, err := redisdb.New(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	groupQueue := queue.NewGroupQueue(rdb, log)

	ctx := context.Background()
	integration, err := integrationRepo.GetByID(dbctx.New(ctx), integrationID)
	if err != nil {
		log.Error("Load integration failed", "integration_id", integrationID.String(), "error", err)
		os.Exit(1)
	}

	discoverer, err := sources.NewDiscoverer(ctx, integration.Source, log)
	if err != nil {
		log.Error("Discoverer init failed", "source", string(integration.Source), "error", err)
		os.Exit(1)
	}

	scheduler := pipeline.NewScheduler(integrationRepo, groupRepo, groupQueue, discoverer, log)
	if err := scheduler.Run(ctx, integrationID); err != nil {
		log.Error("Scheduling pass failed", "integration_id", integrationID.String(), "error", err)
		os.Exit(1)
	}
	log.Info("Scheduling pass complete", "integration_id", integrationID.String())
}
