package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/clients/redis"
	"github.com/archmap/archmap-backend/internal/db"
	"github.com/archmap/archmap-backend/internal/handlers"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/middleware"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/server"
	"github.com/archmap/archmap-backend/internal/services"
	"github.com/archmap/archmap-backend/internal/utils"
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
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	objectRepo := repos.NewObjectRepo(thePG, log)
	affinityRepo := repos.NewDomainAffinityRepo(thePG, log)
	relationRepo := repos.NewRelationRepo(thePG, log)
	changeRequestRepo := repos.NewChangeRequestRepo(thePG, log)
	generationRepo := repos.NewGenerationRepo(thePG, log)
	rollupEdgeRepo := repos.NewRollupEdgeRepo(thePG, log)
	graphStatRepo := repos.NewGraphStatRepo(thePG, log)

	// Invalidation bus (optional; single-instance deployments run without it)
	var bus redis.InvalidationBus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = redis.NewInvalidationBus(log)
		if err != nil {
			log.Warn("Could not init redis invalidation bus", "error", err)
			bus = nil
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	objectService := services.NewObjectService(thePG, log, objectRepo, affinityRepo)
	changeRequestService := services.NewChangeRequestService(thePG, log, changeRequestRepo)
	approvalService := services.NewApprovalService(thePG, log, changeRequestRepo, objectRepo, relationRepo)
	generationService := services.NewGenerationService(thePG, log, generationRepo)
	graphIndexService := services.NewGraphIndexService(thePG, log, rollupEdgeRepo)
	var publisher services.RebuildPublisher
	if bus != nil {
		publisher = bus
	}
	rollupService := services.NewRollupService(
		thePG,
		log,
		objectRepo,
		relationRepo,
		affinityRepo,
		rollupEdgeRepo,
		graphStatRepo,
		generationService,
		graphIndexService,
		publisher,
	)
	queryService := services.NewQueryService(thePG, log, objectRepo, relationRepo, rollupEdgeRepo, generationService, graphIndexService)

	if bus != nil {
		err = bus.StartForwarder(context.Background(), func(workspaceID uuid.UUID, version int) {
			log.Info("Rebuild broadcast received, dropping cached graphs", "workspace_id", workspaceID, "version", version)
			graphIndexService.Invalidate(workspaceID)
		})
		if err != nil {
			log.Warn("Could not start invalidation forwarder", "error", err)
		}
		defer bus.Close()
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	objectHandler := handlers.NewObjectHandler(log, objectService)
	changeRequestHandler := handlers.NewChangeRequestHandler(log, changeRequestService, approvalService)
	rollupHandler := handlers.NewRollupHandler(log, rollupService, generationService)
	queryHandler := handlers.NewQueryHandler(log, queryService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:       authMiddleware,
		ObjectHandler:        objectHandler,
		ChangeRequestHandler: changeRequestHandler,
		RollupHandler:        rollupHandler,
		QueryHandler:         queryHandler,
	})

	port := utils.GetEnvAsInt("PORT", 8080, log)
	fmt.Printf("Server listening on :%d\n", port)
	if err := router.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Error("Server failed", "error", err)
	}
}
