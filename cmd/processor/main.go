package main

import (
	"context"
	"fmt"
	"os"

	"github.com/weftlabs/weft-backend/internal/clients/openai"
	"github.com/weftlabs/weft-backend/internal/clients/pinecone"
	"github.com/weftlabs/weft-backend/internal/data/db"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	"github.com/weftlabs/weft-backend/internal/graph"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/envutil"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/platform/neo4jdb"
	"github.com/weftlabs/weft-backend/internal/platform/redisdb"
	"github.com/weftlabs/weft-backend/internal/queue"
	"github.com/weftlabs/weft-backend/internal/sources"
	"github.com/weftlabs/weft-backend/internal/vector"
)

// The processor is the execution job body: it consumes exactly one staged
// chunk identified by its environment inputs, applies every item into the
// graph and vector stores, then exits. A non-zero exit lets the orchestrator
// retry the whole attempt.
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

	inputs, err := pipeline.LoadJobInputs(log)
	if err != nil {
		log.Error("Invalid job inputs", "error", err)
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
	vectorRepo := integrations.NewVectorRepo(thePG, log)

	rdb, err := redisdb.New(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	chunks := queue.NewChunkStore(rdb, cfg.ChunkTTL, log)

	ctx := context.Background()

	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	defer neoClient.Close(ctx)
	graphStore, err := graph.NewStore(neoClient, log)
	if err != nil {
		log.Error("Graph store init failed", "error", err)
		os.Exit(1)
	}

	embedder, err := openai.NewClient(log)
	if err != nil {
		log.Error("OpenAI init failed", "error", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: envutil.GetEnv("PINECONE_API_KEY", "", log),
	})
	if err != nil {
		log.Error("Pinecone init failed", "error", err)
		os.Exit(1)
	}
	vectorStore, err := vector.NewStore(log, embedder, pineconeClient, vectorRepo)
	if err != nil {
		log.Error("Vector store init failed", "error", err)
		os.Exit(1)
	}

	integration, err := integrationRepo.GetByID(dbctx.New(ctx), inputs.IntegrationID)
	if err != nil {
		log.Error("Load integration failed", "integration_id", inputs.IntegrationID.String(), "error", err)
		os.Exit(1)
	}

	applier, err := sources.NewApplier(ctx, integration.Source, graphStore, vectorStore, inputs.Namespace, log)
	if err != nil {
		log.Error("Applier init failed", "source", string(integration.Source), "error", err)
		os.Exit(1)
	}

	runner := pipeline.NewRunner(integrationRepo, groupRepo, jobRepo, vectorRepo, chunks, applier, graphStore, log)
	if err := runner.Run(ctx, inputs); err != nil {
		log.Error("Chunk processing failed", "job_id", inputs.JobID.String(), "error", err)
		os.Exit(1)
	}
	log.Info("Chunk processing complete", "job_id", inputs.JobID.String())
}
