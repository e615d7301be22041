package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"catalog-search/config"
	"catalog-search/internal/handler"
	"catalog-search/internal/middleware"
	"catalog-search/internal/redis"
	"catalog-search/internal/transport/httpdto"
	"catalog-search/pkg/logger"

	"github.com/gin-gonic/gin"
)

const shutdownGrace = 5 * time.Second

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Index  *handler.IndexHandler
	Search *handler.SearchHandler
	Queue  *handler.QueueHandler
}

// HealthCheck is one dependency checked by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health feeds the /health endpoint. Degraded reports that the index engine
// is unusable and queries are served by the fallback path.
type Health struct {
	Checks   []HealthCheck
	Degraded func() bool
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: logger.OrNop(l),
	}
}

// Engine exposes the router, mostly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, limiter *redis.RateLimiter, health Health) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.UserIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, hc := range health.Checks {
			if err := hc.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(fmt.Sprintf("%s: %v", hc.Name, err), "UNHEALTHY"))
				return
			}
		}
		degraded := health.Degraded != nil && health.Degraded()
		status := "healthy"
		if degraded {
			status = "degraded"
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": status, "degraded": degraded}))
	})

	admin := middleware.AdminRateLimitMiddleware(limiter)
	searchLimit := middleware.SearchRateLimitMiddleware(limiter)

	index := s.engine.Group("/v1/index", admin)
	{
		index.GET("/status", handlers.Index.Status)
		index.POST("/reindex", handlers.Index.ReindexAll)
		index.POST("/products/:id/reindex", handlers.Index.ReindexOne)
		index.GET("/outbox/summary", handlers.Index.OutboxSummary)
		index.POST("/outbox/requeue-failed", handlers.Index.RequeueFailed)
		index.POST("/outbox/archive", handlers.Index.Archive)
		index.POST("/outbox/events", handlers.Index.EnqueueEvent)
	}

	search := s.engine.Group("/v1/search")
	{
		search.GET("", searchLimit, handlers.Search.Search)
		search.GET("/autocomplete", searchLimit, handlers.Search.Autocomplete)
		search.GET("/popular-keywords", searchLimit, handlers.Search.PopularKeywords)

		search.GET("/recent-keywords", handlers.Search.RecentKeywords)
		search.POST("/recent-keywords", handlers.Search.SaveRecentKeyword)
		search.DELETE("/recent-keywords", handlers.Search.ClearRecentKeywords)
		search.DELETE("/recent-keywords/:keyword", handlers.Search.RemoveRecentKeyword)
		search.PUT("/recent-keywords/settings", handlers.Search.UpdateRecentSetting)

		search.GET("/weights", handlers.Search.GetWeights)
		search.PUT("/weights", admin, handlers.Search.UpdateWeights)
	}

	queues := s.engine.Group("/v1/queues", admin)
	{
		queues.GET("/stats", handlers.Queue.Stats)
		queues.POST("/auto-retry", handlers.Queue.AutoRetry)
		queues.GET("/:name/stats", handlers.Queue.QueueStats)
		queues.GET("/:name/failed", handlers.Queue.FailedJobs)
		queues.POST("/:name/retry-failed", handlers.Queue.RetryFailed)
		queues.POST("/:name/pause", handlers.Queue.Pause)
		queues.POST("/:name/resume", handlers.Queue.Resume)
		queues.POST("/:name/jobs/:id/retry", handlers.Queue.RetryJob)
		queues.DELETE("/:name/jobs/:id", handlers.Queue.RemoveJob)
	}
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// in-flight requests for up to shutdownGrace.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen on :%s: %w", s.config.AppPort, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("Shutdown signal received, draining for up to %s", shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
