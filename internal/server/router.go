package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/weftlabs/weft-backend/internal/http/handlers"
)

type RouterConfig struct {
	IntegrationHandler  *handlers.IntegrationHandler
	StatusStreamHandler *handlers.StatusStreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/ws", cfg.StatusStreamHandler.Stream)

	api := router.Group("/api")
	{
		api.POST("/integrations", cfg.IntegrationHandler.Create)
		api.GET("/integrations", cfg.IntegrationHandler.List)
		api.GET("/integrations/:id", cfg.IntegrationHandler.Get)
		api.POST("/integrations/:id/activate", cfg.IntegrationHandler.Activate)
		api.POST("/integrations/:id/deactivate", cfg.IntegrationHandler.Deactivate)
		api.DELETE("/integrations/:id", cfg.IntegrationHandler.Delete)
		api.GET("/integrations/:id/parent-groups", cfg.IntegrationHandler.ListParentGroups)
		api.GET("/integrations/:id/jobs", cfg.IntegrationHandler.ListJobs)
	}

	return router
}
