package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/snipara/rlm/auth"
	"github.com/snipara/rlm/config"
	"github.com/snipara/rlm/engine"
	"github.com/snipara/rlm/handlers"
	"github.com/snipara/rlm/logging"
	"github.com/snipara/rlm/metrics"
	"github.com/snipara/rlm/middleware"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services/impl"
	"github.com/snipara/rlm/services/swarm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging, cfg.Server.Debug)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	db, err := initDB(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddress(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	embedder, err := impl.NewOpenAIEmbedder(cfg.Embedding.Model)
	if err != nil {
		// Keyword-only mode: queries degrade to keyword ranking, semantic
		// tools report plan errors, and the index worker skips embeddings.
		logger.Warn("embedder unavailable, running keyword-only", zap.Error(err))
		embedder = nil
	}

	// Service graph.
	usage := impl.NewUsageService(db, redisClient, logger)
	tokenIssuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpiration)*time.Second)
	admission := impl.NewAdmission(db, redisClient, usage, tokenIssuer, logger)

	indexCache := impl.NewIndexCache(db, logger)
	semantic := impl.NewSemanticScorer(db, embedder, logger)
	sessions := impl.NewSessionStore(redisClient)
	memories := impl.NewMemoryStore(db, embedder, logger)
	documents := impl.NewDocumentStore(db, logger)
	summaries := impl.NewSummaryStore(db)
	shared := impl.NewSharedContextStore(db)
	coordinator := swarm.NewCoordinator(db, logger)
	access := impl.NewAccessRequests(db)
	projects := impl.NewProjectService(db)
	jobs := impl.NewIndexJobs(db)
	integrator := impl.NewIntegratorAdmin(db)
	webhooks := impl.NewWebhookDispatcher(db, logger)

	eng := engine.New(engine.Deps{
		Logger:    logger,
		Index:     indexCache,
		Semantic:  semantic,
		Sessions:  sessions,
		Memories:  memories,
		Documents: documents,
		Summaries: summaries,
		Shared:    shared,
		Swarm:     coordinator,
		Access:    access,
		Projects:  projects,
	})

	// Background index worker.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go impl.NewIndexWorker(db, embedder, logger).Run(workerCtx)

	remember := middleware.NewAutoRemember(memories, logger)
	runner := handlers.NewRunner(logger, admission, eng, usage, projects, remember)

	router := setupRouter(cfg, logger, redisClient, db,
		handlers.NewMCPHandlers(runner),
		handlers.NewRESTHandlers(runner, jobs, memories, projects, cfg.Auth.InternalSecret),
		handlers.NewSSEHandlers(runner),
		handlers.NewIntegratorHandlers(integrator, webhooks, cfg.Auth.InternalSecret, logger),
		handlers.NewWellKnownHandlers(cfg.Server.BaseURL),
		embedder != nil,
	)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.GetServerAddress()),
			zap.Bool("debug", cfg.Server.Debug))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

// initDB opens postgres with the configured pool, retrying the bootstrap
// connection with exponential backoff, max 3 attempts.
func initDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		db, err = gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Warn("database connection failed",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(1<<attempt) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Team{},
		&models.Subscription{},
		&models.Project{},
		&models.APIKey{},
		&models.OAuthToken{},
		&models.ProjectAccess{},
		&models.AccessRequest{},
		&models.SharedCollection{},
		&models.ProjectSharedLink{},
		&models.Document{},
		&models.DocumentChunk{},
		&models.Summary{},
		&models.AgentMemory{},
		&models.IndexJob{},
		&models.UsageRecord{},
		&models.AccessDenial{},
		&models.Swarm{},
		&models.SwarmAgent{},
		&models.ResourceClaim{},
		&models.SharedState{},
		&models.SwarmTask{},
		&models.IntegratorWorkspace{},
		&models.IntegratorClient{},
		&models.ClientAPIKey{},
		&models.WebhookEndpoint{},
		&models.WebhookDelivery{},
	)
}

func setupRouter(cfg *config.Config, logger *zap.Logger, redisClient *redis.Client, db *gorm.DB,
	mcp *handlers.MCPHandlers, rest *handlers.RESTHandlers, sse *handlers.SSEHandlers,
	integrator *handlers.IntegratorHandlers, wellKnown *handlers.WellKnownHandlers,
	embedderReady bool) *gin.Engine {

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders(cfg.Server.Debug))
	router.Use(metrics.Middleware())
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	router.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))
	router.Use(middleware.IPRateLimit(redisClient, cfg.Limits.IPRequestsPerMinute, logger, func() {
		metrics.RateLimitRejections.Inc()
	}))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Auth.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Session-Id", "X-Agent-Id", "Mcp-Session-Id"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "snipara-rlm",
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "reason": "database"})
			return
		}
		if !embedderReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "reason": "embedder"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", metrics.Handler())

	wk := router.Group("/.well-known")
	{
		wk.GET("/oauth-authorization-server", wellKnown.OAuthAuthorizationServer)
		wk.GET("/ai-plugin.json", wellKnown.AIPlugin)
	}

	router.POST("/mcp/team/:team", mcp.HandleTeam)
	router.POST("/mcp/:project", mcp.HandleProject)

	v1 := router.Group("/v1")
	{
		admin := v1.Group("/admin")
		admin.GET("/demo-analytics", rest.DemoAnalytics)

		ig := v1.Group("/integrator", integrator.Authorize)
		{
			ig.POST("/workspaces", integrator.CreateWorkspace)
			ig.GET("/workspaces/:id", integrator.GetWorkspace)
			ig.POST("/workspaces/:id/clients", integrator.CreateClient)
			ig.GET("/workspaces/:id/clients", integrator.ListClients)
			ig.POST("/workspaces/:id/webhooks", integrator.CreateWebhook)
			ig.PATCH("/clients/:id", integrator.UpdateClient)
			ig.DELETE("/clients/:id", integrator.DeleteClient)
			ig.POST("/clients/:id/keys", integrator.CreateClientKey)
			ig.DELETE("/clients/:id/keys/:key_id", integrator.RevokeClientKey)
			ig.DELETE("/webhooks/:id", integrator.DeleteWebhook)
		}

		project := v1.Group("/:project")
		{
			project.POST("/mcp", rest.ExecuteTool)
			project.GET("/mcp/sse", sse.Handle)
			project.POST("/mcp/sse", sse.Handle)
			project.GET("/context", rest.Context)
			project.GET("/limits", rest.Limits)
			project.GET("/stats", rest.Stats)
			project.GET("/memories", rest.ListMemories)
			project.POST("/memories", rest.CreateMemory)
			project.POST("/reindex", rest.Reindex)
			project.GET("/reindex/:job_id", rest.ReindexStatus)
		}
	}

	return router
}
