package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"newsletter-relay/config"
	"newsletter-relay/internal/handler"
	"newsletter-relay/internal/middleware"
	"newsletter-relay/internal/redis"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/transport/httpdto"
	"newsletter-relay/pkg/database"
	"newsletter-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

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
	Newsletter *handler.NewsletterHandler
	Outbox     *handler.OutboxHandler
}

// Dependencies are the collaborators the routes need besides handlers.
// RateLimiter is optional.
type Dependencies struct {
	DB          *gorm.DB
	Auth        *services.AuthService
	RateLimiter *redis.RateLimiter
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.AppMode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
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
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Dependencies) {
	s.engine.Use(otelgin.Middleware("newsletter-relay"))
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(c.Request.Context(), deps.DB); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), httpdto.CodeUnhealthy))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	admin := s.engine.Group("/admin", middleware.AuthMiddleware(deps.Auth))
	{
		publish := []gin.HandlerFunc{}
		if deps.RateLimiter != nil {
			publish = append(publish, middleware.PublishRateLimitMiddleware(deps.RateLimiter))
		}
		publish = append(publish, handlers.Newsletter.Publish)
		admin.POST("/newsletters", publish...)
		admin.GET("/outbox", handlers.Outbox.Stats)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	s.logger.Infof("Server stopped gracefully")
	return nil
}
