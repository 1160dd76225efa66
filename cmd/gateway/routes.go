package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"asset-audit/config"
	"asset-audit/internal/database"
	"asset-audit/internal/events"
	"asset-audit/internal/gateway/handlers"
	"asset-audit/internal/gateway/middleware"
	audit "asset-audit/internal/services/audit/handler"
	inventory "asset-audit/internal/services/inventory/handler"
	"asset-audit/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	logger := config.GetLogger()
	utils.SetJwtSecret(cfg.Auth.JWTSecret)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Auth.JWTSecret == "" {
			logger.Fatal("JWT_SECRET is required in production")
		}
	}

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		logger.Fatalf("Failed to connect to db: %v", err)
	}
	if err := database.MigrateAuditDB(db); err != nil {
		logger.Fatalf("Failed to migrate audit database: %v", err)
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis unavailable, running without cache: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	bus := newEventBus(cfg, redisClient)
	defer bus.Close()
	unsubscribe := bus.Subscribe(events.TopicAuditRecorded, func(ctx context.Context, event events.Event) {
		logger.WithField("topic", event.Topic).WithField("payload", string(event.Payload)).Info("audit recorded")
	})
	defer unsubscribe()

	inventoryHandler := inventory.NewInventoryHandler(db, redisClient)
	auditHandler := audit.NewAuditHandler(db, redisClient, inventoryHandler, bus,
		audit.WithStrictSnapshot(cfg.Audit.StrictSnapshot))
	auditHTTPHandler := handlers.NewAuditHTTPHandler(auditHandler, cfg.Audit.MaxUploadBytes)

	rateLimit, err := middleware.RateLimit(cfg.HTTP.RateLimit)
	if err != nil {
		logger.Fatalf("Error while configuring rate limiter: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.IsProduction(), cfg.HTTP.AllowedOrigins))
	r.Use(rateLimit)
	r.Use(serviceHealthMiddleware(redisClient))
	r.MaxMultipartMemory = cfg.Audit.MaxUploadBytes

	// --- Protected API Group ---
	protected := r.Group("/api")
	protected.Use(middleware.JWTAuth())
	{
		protected.GET("/locations", auditHTTPHandler.ListLocations)

		audits := protected.Group("/audits")
		audits.Use(middleware.RequireRole(utils.RoleSuperadmin))
		{
			audits.POST("/compare", auditHTTPHandler.Compare)
			audits.POST("/compare/upload", auditHTTPHandler.UploadCompare)
			audits.GET("/history", auditHTTPHandler.History)
			audits.GET("/history/export", auditHTTPHandler.ExportHistoryCSV)
			audits.GET("/:auditId", auditHTTPHandler.GetAuditRun)
			audits.GET("/:auditId/export", auditHTTPHandler.ExportAuditRun)
		}
	}

	r.GET("/health", healthCheckHandler(db, redisClient))
	r.GET("/health/detailed", detailedHealthCheckHandler(db, redisClient))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}

func newEventBus(cfg config.Config, redisClient *redis.Client) events.Bus {
	logger := config.GetLogger()
	if cfg.EventBus.Driver == "redis" {
		if redisClient == nil {
			logger.Warn("EVENT_BUS=redis but Redis is unavailable, using in-memory bus")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			bus, err := events.NewRedisBus(ctx, redisClient, cfg.EventBus.Channel, logger)
			if err == nil {
				return bus
			}
			logger.Warnf("Failed to subscribe to %s, using in-memory bus: %v", cfg.EventBus.Channel, err)
		}
	}
	return events.NewMemoryBus(cfg.EventBus.Buffer, logger)
}

func serviceHealthMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient != nil {
			c.Header("X-Cache", "available")
		} else {
			c.Header("X-Cache", "unavailable")
		}
		c.Next()
	}
}

func healthCheckHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		httpStatus := http.StatusOK

		unavailable := []string{}
		if err := pingDB(c.Request.Context(), db); err != nil {
			unavailable = append(unavailable, "database")
		}
		if redisClient == nil {
			unavailable = append(unavailable, "redis")
		}

		if len(unavailable) > 0 {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":               status,
			"message":              "Server is running",
			"unavailable_services": unavailable,
			"timestamp":            time.Now(),
		})
	}
}

func detailedHealthCheckHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		services := map[string]interface{}{
			"database": checkServiceHealth(pingDB(ctx, db)),
			"redis":    checkServiceHealth(pingRedis(ctx, redisClient)),
		}

		overallStatus := "healthy"
		for _, service := range services {
			if serviceMap, ok := service.(map[string]interface{}); ok {
				if serviceMap["status"] != "healthy" {
					overallStatus = "degraded"
				}
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"overall_status": overallStatus,
			"services":       services,
			"timestamp":      time.Now(),
		})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func pingRedis(ctx context.Context, redisClient *redis.Client) error {
	if redisClient == nil {
		return errors.New("client not initialized")
	}
	return redisClient.Ping(ctx).Err()
}

func checkServiceHealth(err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{
			"status":  "unavailable",
			"message": err.Error(),
		}
	}
	return map[string]interface{}{
		"status":  "healthy",
		"message": "Service is responding",
	}
}
