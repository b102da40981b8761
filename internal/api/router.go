// Package api wires together all HTTP routes for the CaseFlow backend.
//
// Route grouping philosophy:
//   - /health, /ready, and /version are public probes.
//   - /api/v1/auth/login and /refresh are public but strictly rate limited.
//   - Everything else under /api/v1 requires authentication; write requests
//     pass through the audit middleware so every mutation leaves an action
//     record.
//   - /api/v1/admin routes additionally require an elevated role.
package api

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/caseflow/caseflow/internal/api/accounts"
	"github.com/caseflow/caseflow/internal/api/admin"
	"github.com/caseflow/caseflow/internal/api/cases"
	"github.com/caseflow/caseflow/internal/api/history"
	"github.com/caseflow/caseflow/internal/audit"
	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/changes"
	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/jobs"
	"github.com/caseflow/caseflow/internal/middleware"
	"github.com/caseflow/caseflow/internal/storage"

	// Import storage backends to register them
	_ "github.com/caseflow/caseflow/internal/storage/local"
	_ "github.com/caseflow/caseflow/internal/storage/s3"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) calls Shutdown() after the
// HTTP server has drained in-flight requests.
type BackgroundServices struct {
	auditSink    audit.Sink
	retentionJob *jobs.RetentionJob
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines and flushes the audit queue.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditSink != nil {
		if err := bg.auditSink.Close(); err != nil {
			slog.Error("failed to close audit sink", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	clientRepo := repositories.NewClientRepository(db)
	caseRepo := repositories.NewCaseRepository(db)
	docRepo := repositories.NewDocumentRepository(db)
	actionRecordRepo := repositories.NewActionRecordRepository(db)
	changeRepo := repositories.NewChangeRepository(db)
	grantRepo := repositories.NewGrantRepository(sqlx.NewDb(db, "postgres"))

	// Authorization decider over the grant store
	decider := authz.NewDecider(grantRepo, authz.UnscopedPolicy(cfg.Authz.UnscopedPolicy))

	// Change history service
	changeService := changes.NewService(changeRepo)

	// Audit sink chain: database store, optional JSONL mirror, optional async
	// delivery queue
	auditSink := buildAuditSink(cfg, actionRecordRepo)
	bg.auditSink = auditSink
	entityResolver := audit.NewEntityResolver()

	// Retention sweeper for entity changes. Action records are append-only
	// and not swept.
	if cfg.Retention.Enabled {
		bg.retentionJob = jobs.NewRetentionJob(changeRepo, cfg.Retention.MaxChangeAge, cfg.Retention.SweepInterval)
		bg.retentionJob.Start()
		slog.Info("retention sweeper started",
			"max_change_age", cfg.Retention.MaxChangeAge,
			"sweep_interval", cfg.Retention.SweepInterval)
	}

	// Global middleware. Order matters: security headers and request IDs
	// first, then observability, then CORS. Rate limiting, auth, and audit
	// attach per route group.
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))

	// Probes
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	// Rate limiting: strict for credential endpoints, default elsewhere
	authLimit, generalLimit := rateLimitMiddlewares(cfg, bg)

	// Handlers
	authHandlers := accounts.NewAuthHandlers(cfg, userRepo)
	caseHandlers := cases.NewCaseHandlers(caseRepo, decider, changeService)
	docHandlers := cases.NewDocumentHandlers(docRepo, caseRepo, storageBackend, decider, changeService)
	historyHandlers := history.NewHandlers(changeService, decider)
	clientHandlers := admin.NewClientHandlers(clientRepo)
	userHandlers := admin.NewUserHandlers(userRepo)
	grantHandlers := admin.NewGrantHandlers(grantRepo)
	auditHandlers := admin.NewAuditHandlers(actionRecordRepo)

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints, rate limited hard
		authGroup := apiV1.Group("/auth")
		authGroup.Use(authLimit)
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/refresh", authHandlers.RefreshHandler())
		}

		// Authenticated endpoints. Audit runs after auth so records carry
		// the actor.
		authed := apiV1.Group("")
		authed.Use(generalLimit)
		authed.Use(middleware.AuthMiddleware(userRepo))
		if cfg.Audit.Enabled {
			authed.Use(middleware.AuditMiddleware(auditSink, entityResolver))
		}
		{
			authed.GET("/auth/me", authHandlers.MeHandler())

			authed.POST("/cases", caseHandlers.CreateCaseHandler())
			authed.GET("/cases", caseHandlers.ListCasesHandler())
			authed.GET("/cases/:id", caseHandlers.GetCaseHandler())
			authed.PUT("/cases/:id", caseHandlers.UpdateCaseHandler())
			authed.DELETE("/cases/:id", caseHandlers.DeleteCaseHandler())

			authed.POST("/cases/:id/documents", docHandlers.UploadDocumentHandler())
			authed.GET("/cases/:id/documents", docHandlers.ListDocumentsHandler())
			authed.GET("/documents/:id", docHandlers.GetDocumentHandler())
			authed.DELETE("/documents/:id", docHandlers.DeleteDocumentHandler())

			authed.GET("/history/:type/:id", historyHandlers.GetHistoryHandler())
			authed.GET("/history/:type/:id/fields/:field", historyHandlers.GetFieldHistoryHandler())
			authed.GET("/changes/:id", historyHandlers.GetChangeHandler())

			// Admin endpoints require an elevated role on top of auth
			adminGroup := authed.Group("/admin")
			adminGroup.Use(middleware.RequireRole(auth.RoleAdmin))
			{
				adminGroup.POST("/clients", clientHandlers.CreateClientHandler())
				adminGroup.GET("/clients", clientHandlers.ListClientsHandler())
				adminGroup.GET("/clients/:id", clientHandlers.GetClientHandler())
				adminGroup.PUT("/clients/:id", clientHandlers.UpdateClientHandler())

				adminGroup.POST("/users", userHandlers.CreateUserHandler())
				adminGroup.GET("/users", userHandlers.ListUsersHandler())
				adminGroup.GET("/users/:id", userHandlers.GetUserHandler())
				adminGroup.PUT("/users/:id", userHandlers.UpdateUserHandler())

				adminGroup.POST("/grants", grantHandlers.CreateGrantHandler())
				adminGroup.GET("/grants", grantHandlers.ListGrantsHandler())
				adminGroup.GET("/grants/:id", grantHandlers.GetGrantHandler())
				adminGroup.DELETE("/grants/:id", grantHandlers.RevokeGrantHandler())

				adminGroup.GET("/audit", auditHandlers.ListActionRecordsHandler())
				adminGroup.GET("/audit/:id", auditHandlers.GetActionRecordHandler())

				adminGroup.DELETE("/changes/:id", historyHandlers.SoftDeleteChangeHandler())
				adminGroup.POST("/changes/:id/restore", historyHandlers.RestoreChangeHandler())
			}
		}
	}

	return router, bg
}

// buildAuditSink assembles the sink chain from configuration.
func buildAuditSink(cfg *config.Config, records audit.RecordStore) audit.Sink {
	var sink audit.Sink = audit.NewStoreSink(records)

	if cfg.Audit.File.Enabled {
		fileSink, err := audit.NewFileSink(cfg.Audit.File.Path)
		if err != nil {
			log.Fatalf("Failed to open audit file sink: %v", err)
		}
		sink = audit.NewMultiSink(sink, fileSink)
	}

	if cfg.Audit.Async {
		sink = audit.NewAsyncSink(sink, cfg.Audit.QueueSize)
	}

	return sink
}

// rateLimitMiddlewares builds the strict (auth) and general limiters per the
// configured driver. When rate limiting is disabled both are pass-throughs.
func rateLimitMiddlewares(cfg *config.Config, bg *BackgroundServices) (authLimit, generalLimit gin.HandlerFunc) {
	noop := func(c *gin.Context) { c.Next() }

	if !cfg.Security.RateLimiting.Enabled {
		return noop, noop
	}

	if cfg.Security.RateLimiting.Driver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.redisClient = client

		authLimiter := middleware.NewRedisRateLimiter(client, 10, 5)
		generalLimiter := middleware.NewRedisRateLimiter(client,
			cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst)
		return middleware.RedisRateLimitMiddleware(authLimiter), middleware.RedisRateLimitMiddleware(generalLimiter)
	}

	authLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalConfig := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		generalConfig.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		generalConfig.BurstSize = cfg.Security.RateLimiting.Burst
	}
	generalLimiter := middleware.NewRateLimiter(generalConfig)
	bg.rateLimiters = append(bg.rateLimiters, authLimiter, generalLimiter)

	return middleware.RateLimitMiddleware(authLimiter), middleware.RateLimitMiddleware(generalLimiter)
}

// healthCheckHandler reports process liveness and database reachability
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// readinessHandler reports whether the service can take traffic, probing both
// the database and the storage backend
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "database": "unreachable"})
			return
		}
		if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "storage": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": Version})
	}
}
