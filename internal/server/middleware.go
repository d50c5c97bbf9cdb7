package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/perms"
	"github.com/mstefan99/beacon/internal/store"
)

// Context keys for values loaded by middleware.
const (
	ctxUser    = "beacon.user"
	ctxSession = "beacon.session"
	ctxApp     = "beacon.app"
	ctxGrant   = "beacon.grant"
)

// Header and cookie names on the wire.
const (
	headerAudienceKey  = "Audience-Key"
	headerTelemetryKey = "Telemetry-Key"
	headerAPIKey       = "API-Key"
	sessionCookie      = "session"
)

// =============================================================================
// Error rendering
// =============================================================================

// fail renders an error as {error, message} with the status its category
// maps to. Unexpected errors get a generic message unless development mode
// is on.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case errors.IsForbidden(err):
		status = http.StatusForbidden
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsRateLimited(err):
		status = http.StatusTooManyRequests
	case errors.IsStorageUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	message := errors.MessageOf(err)
	if status == http.StatusInternalServerError {
		logging.WithContext(c.Request.Context()).Error("request failed",
			"component", "server", "path", c.FullPath(), "error", err)
		if s.cfg.Development {
			message = err.Error()
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   errors.CodeOf(err),
		"message": message,
	})
}

// =============================================================================
// Ambient middleware
// =============================================================================

// requestLogger tags every request with an id and logs it on completion.
// The id travels in the request context, so deeper log lines carry it too.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logging.ContextWithRequestID(c.Request.Context(), uuid.NewString())
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logging.WithContext(ctx).Debug("request",
			"component", "server",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP())
	}
}

func (s *Server) cors() gin.HandlerFunc {
	origin := s.cfg.Server.CORSOrigin
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Headers",
				"Content-Type, Audience-Key, Telemetry-Key, API-Key")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) bodyLimit() gin.HandlerFunc {
	limit := s.cfg.Server.MaxBodySize
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// rateGate rejects requests past the configured limit, keyed by a tag and
// an identity extractor so independent surfaces do not share counters.
func (s *Server) rateGate(tag string, identity func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.gate.Allow(tag + ":" + identity(c)) {
			s.fail(c, errors.RateLimited())
			return
		}
		c.Next()
	}
}

// =============================================================================
// Authentication
// =============================================================================

// sessionToken extracts the login token from the session cookie or the
// API-Key header.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		return token
	}
	return c.GetHeader(headerAPIKey)
}

// requireAuth resolves the login session and stores the user and session
// in the request context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, session, err := s.auth.Resolve(sessionToken(c))
		if err != nil {
			s.fail(c, err)
			return
		}

		c.Set(ctxUser, user)
		c.Set(ctxSession, session)
		c.Next()
	}
}

// GetUser returns the authenticated user, or nil outside requireAuth.
func GetUser(c *gin.Context) *store.User {
	if v, ok := c.Get(ctxUser); ok {
		return v.(*store.User)
	}
	return nil
}

// GetSession returns the login session, or nil outside requireAuth.
func GetSession(c *gin.Context) *store.LoginSession {
	if v, ok := c.Get(ctxSession); ok {
		return v.(*store.LoginSession)
	}
	return nil
}

// =============================================================================
// Write-key scoping
// =============================================================================

func (s *Server) requireAudienceKey() gin.HandlerFunc {
	return s.requireWriteKey(headerAudienceKey, s.store.GetAppByAudienceKey)
}

func (s *Server) requireTelemetryKey() gin.HandlerFunc {
	return s.requireWriteKey(headerTelemetryKey, s.store.GetAppByTelemetryKey)
}

func (s *Server) requireWriteKey(header string, lookup func(string) (*store.App, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(header)
		if key == "" {
			s.fail(c, errors.Unauthorized("You need to provide a write key to do this"))
			return
		}

		app, err := lookup(key)
		if err != nil {
			if errors.IsNotFound(err) {
				s.fail(c, errors.Unauthorized("Invalid write key"))
				return
			}
			s.fail(c, err)
			return
		}

		c.Set(ctxApp, app)
		c.Request = c.Request.WithContext(
			logging.ContextWithAppID(c.Request.Context(), app.ID))
		c.Next()
	}
}

// =============================================================================
// App access
// =============================================================================

// appHandler handles a request for one app the caller may access.
type appHandler func(c *gin.Context, app *store.App, grant perms.PermissionSet)

// withGrant loads the app from the :id parameter and the caller's grant
// for it. Callers without any grant see the same 404 as for an app that
// does not exist.
func (s *Server) withGrant(h appHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, grant, err := s.resolveApp(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		h(c, app, grant)
	}
}

// withCapability is withGrant plus a permission bit check.
func (s *Server) withCapability(cap perms.Capability, h appHandler) gin.HandlerFunc {
	required := perms.FromList([]perms.Capability{cap})
	return func(c *gin.Context) {
		app, grant, err := s.resolveApp(c)
		if err != nil {
			s.fail(c, err)
			return
		}

		if !perms.Has(required, grant, false) {
			s.fail(c, errors.Forbidden("You are not allowed to do this"))
			return
		}

		h(c, app, grant)
	}
}

func (s *Server) resolveApp(c *gin.Context) (*store.App, perms.PermissionSet, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, perms.PermissionSet{}, errors.Validation(errors.CodeInvalidValue, "App ID must be a number")
	}

	app, err := s.store.GetAppByID(id)
	if err != nil {
		return nil, perms.PermissionSet{}, err
	}

	c.Request = c.Request.WithContext(
		logging.ContextWithAppID(c.Request.Context(), app.ID))

	user := GetUser(c)
	grant, err := s.store.GetGrant(app.ID, user.ID)
	if err != nil {
		if errors.IsNotFound(err) {
			// Ownership is never contingent on a grant row surviving.
			if app.OwnerID == user.ID {
				return app, perms.All(), nil
			}
			return nil, perms.PermissionSet{}, errors.NotFound(errors.CodeAppNotFound, "App was not found")
		}
		return nil, perms.PermissionSet{}, err
	}

	return app, grant.Mask, nil
}

// appData acquires the app's event store handle.
func (s *Server) appData(app *store.App) (*appstore.AppData, error) {
	return s.apps.Acquire(app.ID)
}
