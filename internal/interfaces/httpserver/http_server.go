// Package httpserver exposes the webhook, operator, and realtime endpoints.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"concierge-server/internal/config"
	"concierge-server/internal/domain/dialog"
	"concierge-server/internal/domain/settings"
	"concierge-server/internal/infrastructure/channels"
	"concierge-server/internal/infrastructure/queue"
	"concierge-server/internal/realtime"

	"concierge-server/internal/domain/conversation"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	db     *gorm.DB
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
func New(
	cfg *config.Config,
	db *gorm.DB,
	registry *channels.Registry,
	tasks queue.TaskQueue,
	dialogSvc *dialog.Service,
	repo conversation.Repository,
	settingsRepo settings.Repository,
	hub *realtime.Hub,
	log zerolog.Logger,
) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	webhooks := newWebhookHandler(registry, tasks, log)
	operators := newOperatorHandler(dialogSvc, repo, settingsRepo, log)

	registerPublicRoutes(engine, cfg, db, registry)

	engine.GET("/webhooks/:carrier", webhooks.Handshake)
	engine.POST("/webhooks/:carrier", webhooks.Receive)

	engine.POST("/chat", operators.Chat)
	engine.GET("/conversations", operators.List)
	engine.GET("/conversations/:id/messages", operators.Messages)
	engine.PUT("/conversations/:id/automation", operators.SetAutomation)
	engine.POST("/conversations/:id/handback", operators.HandBack)
	engine.GET("/settings/automation", operators.GetAutomationSwitch)
	engine.PUT("/settings/automation", operators.SetAutomationSwitch)

	engine.GET("/ws", gin.WrapF(hub.HandleWS))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &HttpServer{
		cfg:    cfg,
		engine: engine,
		db:     db,
		log:    log,
	}
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerPublicRoutes(engine *gin.Engine, cfg *config.Config, db *gorm.DB, registry *channels.Registry) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":  cfg.ServiceName,
			"status":   "ok",
			"channels": registry.Channels(),
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}
