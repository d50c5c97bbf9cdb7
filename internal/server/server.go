// Package server is the HTTP boundary: ingestion routes scoped by write
// keys, query routes gated by login sessions and permission bits, and the
// rate gate sitting in front of both.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mstefan99/beacon/config"
	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/auth"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/perms"
	"github.com/mstefan99/beacon/internal/store"
)

var log = logging.Component("server")

// Server wires the HTTP routes to the control store, the app store manager
// and the auth service.
type Server struct {
	cfg   *config.Config
	store *store.Store
	apps  *appstore.Manager
	auth  *auth.Service
	gate  *Gate

	engine *gin.Engine
	http   *http.Server
}

// New creates the server and registers all routes.
func New(cfg *config.Config, st *store.Store, apps *appstore.Manager, authSvc *auth.Service) *Server {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:   cfg,
		store: st,
		apps:  apps,
		auth:  authSvc,
		gate:  NewGate(cfg.Auth.RateLimit, cfg.Auth.RateWindow.Duration()),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.cors(), s.bodyLimit())
	s.engine = engine

	s.routes()

	s.http = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	audience := api.Group("/audience")
	audience.Use(s.rateGate("audience", clientIP), s.requireAudienceKey())
	audience.POST("/hits", s.handleAudienceHit)
	audience.POST("/logs", s.handleAudienceLog)
	audience.POST("/feedback", s.handleAudienceFeedback)

	telemetry := api.Group("/telemetry")
	telemetry.Use(s.rateGate("telemetry", clientIP), s.requireTelemetryKey())
	telemetry.POST("/logs", s.handleTelemetryLog)
	telemetry.POST("/metrics", s.handleTelemetryMetric)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", s.rateGate("login", clientIP), s.handleLogin)
	authGroup.POST("/logout", s.requireAuth(), s.handleLogout)
	authGroup.GET("/me", s.requireAuth(), s.handleMe)
	authGroup.PATCH("/password", s.requireAuth(), s.handleChangePassword)

	apps := api.Group("/apps")
	apps.Use(s.rateGate("apps", clientIP), s.requireAuth())
	apps.GET("", s.handleListApps)
	apps.POST("", s.handleCreateApp)
	apps.GET("/:id", s.withGrant(s.handleGetApp))
	apps.PATCH("/:id", s.withCapability(perms.EditSettings, s.handleUpdateApp))
	apps.DELETE("/:id", s.withGrant(s.handleDeleteApp))

	apps.GET("/:id/overview", s.withCapability(perms.ViewAudience, s.handleOverview))
	apps.GET("/:id/now", s.withCapability(perms.ViewAudience, s.handleRealtime))
	apps.GET("/:id/audience", s.withCapability(perms.ViewAudience, s.handleAudience))
	apps.GET("/:id/history", s.withCapability(perms.ViewAudience, s.handleHistory))
	apps.GET("/:id/logs/server", s.withCapability(perms.ViewServerLogs, s.handleServerLogs))
	apps.GET("/:id/logs/client", s.withCapability(perms.ViewClientLogs, s.handleClientLogs))
	apps.GET("/:id/metrics", s.withCapability(perms.ViewMetrics, s.handleMetrics))
	apps.GET("/:id/feedback", s.withCapability(perms.ViewFeedback, s.handleFeedback))

	apps.GET("/:id/permissions", s.withCapability(perms.EditPermissions, s.handleListGrants))
	apps.PUT("/:id/permissions", s.withCapability(perms.EditPermissions, s.handleUpsertGrant))
	apps.DELETE("/:id/permissions/:userID", s.withCapability(perms.EditPermissions, s.handleDeleteGrant))
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Info("server listening", "addr", s.cfg.Server.Listen)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func clientIP(c *gin.Context) string { return c.ClientIP() }
