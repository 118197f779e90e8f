package main

import (
	"fmt"
	"os"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/cluster/localruntime"
	"github.com/weftlabs/weft-backend/internal/data/db"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	"github.com/weftlabs/weft-backend/internal/graph"
	"github.com/weftlabs/weft-backend/internal/http/handlers"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/envutil"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/platform/neo4jdb"
	"github.com/weftlabs/weft-backend/internal/platform/redisdb"
	"github.com/weftlabs/weft-backend/internal/server"
	"github.com/weftlabs/weft-backend/internal/services"
	"github.com/weftlabs/weft-backend/internal/vector"

	"github.com/weftlabs/weft-backend/internal/clients/openai"
	"github.com/weftlabs/weft-backend/internal/clients/pinecone"
)

func main() {
	// Logger
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

	// Env
	log.Info("Loading environment variables from main...")
	workerReplicas := envutil.GetEnvAsInt("WORKER_REPLICAS", 1, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	integrationRepo := integrations.NewIntegrationRepo(thePG, log)
	groupRepo := integrations.NewParentGroupRepo(thePG, log)
	jobRepo := integrations.NewProcessingJobRepo(thePG, log)
	vectorRepo := integrations.NewVectorRepo(thePG, log)
	resourceRepo := integrations.NewClusterResourceRepo(thePG, log)

	// Graph + vector stores (used for purges on delete)
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Neo4j init failed", "error", err)
	}
	graphStore, err := graph.NewStore(neoClient, log)
	if err != nil {
		log.Fatal("Graph store init failed", "error", err)
	}
	embedder, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI init failed", "error", err)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: envutil.GetEnv("PINECONE_API_KEY", "", log),
	})
	if err != nil {
		log.Fatal("Pinecone init failed", "error", err)
	}
	vectorStore, err := vector.NewStore(log, embedder, pineconeClient, vectorRepo)
	if err != nil {
		log.Fatal("Vector store init failed", "error", err)
	}

	// Redis (job registry shared with the worker and scheduler binaries)
	rdb, err := redisdb.New(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}

	// Runtime + pipeline services
	runtime := localruntime.New(rdb, log)
	defer runtime.Stop()
	deployer := cluster.NewDeployer(runtime, log)
	aggregator := pipeline.NewAggregator(integrationRepo, groupRepo, jobRepo, runtime, log)

	// Services
	log.Info("Setting up services from main...")
	integrationService := services.NewIntegrationService(
		integrationRepo, groupRepo, jobRepo, vectorRepo, resourceRepo,
		deployer, graphStore, vectorStore, workerReplicas, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	integrationHandler := handlers.NewIntegrationHandler(log, integrationService, aggregator, groupRepo, jobRepo)
	statusStreamHandler := handlers.NewStatusStreamHandler(log, aggregator)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IntegrationHandler:  integrationHandler,
		StatusStreamHandler: statusStreamHandler,
	})

	port := envutil.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
