package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/archmap/archmap-backend/internal/handlers"
	"github.com/archmap/archmap-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware       *middleware.AuthMiddleware
	ObjectHandler        *handlers.ObjectHandler
	ChangeRequestHandler *handlers.ChangeRequestHandler
	RollupHandler        *handlers.RollupHandler
	QueryHandler         *handlers.QueryHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// Objects
		api.POST("/objects", cfg.ObjectHandler.Register)
		api.GET("/objects", cfg.ObjectHandler.List)
		// Change requests
		api.POST("/change-requests", cfg.ChangeRequestHandler.Create)
		api.GET("/change-requests", cfg.ChangeRequestHandler.List)
		api.POST("/change-requests/:id/apply", cfg.ChangeRequestHandler.Apply)
		api.POST("/change-requests/apply-bulk", cfg.ChangeRequestHandler.ApplyBulk)
		// Roll-ups
		api.POST("/rollups/rebuild", cfg.RollupHandler.Rebuild)
		api.GET("/rollups/active", cfg.RollupHandler.ActiveGeneration)
		// Queries
		api.POST("/query", cfg.QueryHandler.Execute)
	}

	return router
}
