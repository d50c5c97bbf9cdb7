package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mstefan99/beacon/internal/analyzer"
	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/auth"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/perms"
	"github.com/mstefan99/beacon/internal/store"
)

const dayLengthMs = int64(24 * time.Hour / time.Millisecond)

// appView is the app shape returned to authorized users. Write keys are
// only populated for holders of the ViewKeys capability.
type appView struct {
	*store.App
	AudienceKey  string             `json:"audienceKey,omitempty"`
	TelemetryKey string             `json:"telemetryKey,omitempty"`
	Permissions  []perms.Capability `json:"permissions"`
}

func newAppView(app *store.App, grant perms.PermissionSet) *appView {
	v := &appView{App: app, Permissions: grant.List()}
	if perms.Has(perms.FromList([]perms.Capability{perms.ViewKeys}), grant, false) {
		v.AudienceKey = app.AudienceKey
		v.TelemetryKey = app.TelemetryKey
	}
	return v
}

// =============================================================================
// CRUD
// =============================================================================

func (s *Server) handleListApps(c *gin.Context) {
	user := GetUser(c)

	apps, err := s.store.GetAppsByUser(user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	views := make([]*appView, 0, len(apps))
	for _, app := range apps {
		grant, err := s.store.GetGrant(app.ID, user.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		views = append(views, newAppView(app, grant.Mask))
	}

	c.JSON(http.StatusOK, views)
}

type createAppRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateApp(c *gin.Context) {
	user := GetUser(c)

	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.fail(c, errors.Validation(errors.CodeNoName, "App name needs to be provided"))
		return
	}

	audienceKey, err := auth.NewToken()
	if err != nil {
		s.fail(c, err)
		return
	}
	telemetryKey, err := auth.NewToken()
	if err != nil {
		s.fail(c, err)
		return
	}

	// The app row and the owner's grant are inserted in one transaction,
	// so a failure can never leave an app the owner cannot reach.
	app, err := s.store.CreateApp(name, strings.TrimSpace(req.Description),
		audienceKey, telemetryKey, user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.apps.Provision(app.ID); err != nil {
		s.fail(c, err)
		return
	}

	log.Info("app created", "app", app.ID, "name", app.Name, "owner", user.ID)
	c.JSON(http.StatusCreated, newAppView(app, perms.All()))
}

func (s *Server) handleGetApp(c *gin.Context, app *store.App, grant perms.PermissionSet) {
	c.JSON(http.StatusOK, newAppView(app, grant))
}

type updateAppRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleUpdateApp(c *gin.Context, app *store.App, grant perms.PermissionSet) {
	var req updateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			s.fail(c, errors.Validation(errors.CodeNoName, "App name must not be empty"))
			return
		}
		app.Name = name
	}
	if req.Description != nil {
		app.Description = strings.TrimSpace(*req.Description)
	}

	if err := s.store.UpdateApp(app); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, newAppView(app, grant))
}

func (s *Server) handleDeleteApp(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	user := GetUser(c)
	if app.OwnerID != user.ID {
		s.fail(c, errors.Forbidden("Only the owner can delete an app"))
		return
	}

	if err := s.store.DeleteApp(app.ID); err != nil {
		s.fail(c, err)
		return
	}

	// keepData preserves the event store file for manual recovery.
	if c.Query("keepData") != "true" {
		if err := s.apps.Destroy(app.ID); err != nil {
			s.fail(c, err)
			return
		}
	}

	log.Info("app deleted", "app", app.ID, "owner", user.ID)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Query endpoints
// =============================================================================

// periodMs reads the optional period query parameter in milliseconds,
// falling back to the given default window.
func periodMs(c *gin.Context, defaultMs int64) int64 {
	if v := c.Query("period"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultMs
}

// timeRange reads start/end query parameters with a default window ending
// at now. The window width defaults to defaultPeriodMs and can be
// overridden with the period parameter.
func timeRange(c *gin.Context, defaultPeriodMs int64) (startMs, endMs int64) {
	now := time.Now().UnixMilli()

	endMs = now
	if v := c.Query("end"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			endMs = parsed
		}
	}

	startMs = endMs - periodMs(c, defaultPeriodMs)
	if v := c.Query("start"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			startMs = parsed
		}
	}

	return startMs, endMs
}

func minLevel(c *gin.Context) int {
	if v := c.Query("level"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return 0
}

func (s *Server) handleOverview(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	overview, err := analyzer.OverviewAggregate(c.Request.Context(), data,
		time.Now().UnixMilli(), periodMs(c, s.cfg.Analysis.RealtimePeriod.Duration().Milliseconds()))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) handleRealtime(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	audience, err := analyzer.RealtimeAudienceAggregate(c.Request.Context(), data,
		time.Now().UnixMilli(), periodMs(c, s.cfg.Analysis.RealtimePeriod.Duration().Milliseconds()))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, audience)
}

func (s *Server) handleAudience(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	startMs, endMs := timeRange(c, dayLengthMs)
	audience, err := analyzer.AudienceDetailed(c.Request.Context(), data,
		s.cfg.Analysis.SessionLength.Duration().Milliseconds(), startMs, endMs)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, audience)
}

// historyView bundles the per-day trends with the rank tables so the
// dashboard loads in one request.
type historyView struct {
	Users      map[int64]int64       `json:"users"`
	Views      map[int64]int64       `json:"views"`
	ServerLogs analyzer.LogHistory   `json:"serverLogs"`
	ClientLogs analyzer.LogHistory   `json:"clientLogs"`
	Pages      []*appstore.RankEntry `json:"pages"`
	Referrers  []*appstore.RankEntry `json:"referrers"`
}

func (s *Server) handleHistory(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	startMs, endMs := timeRange(c, s.cfg.Analysis.HistoryPeriod.Duration().Milliseconds())

	audience, err := analyzer.AudienceHistoryAggregate(ctx, data, startMs, endMs)
	if err != nil {
		s.fail(c, err)
		return
	}

	serverLogs, err := analyzer.LogHistoryAggregate(ctx, data, appstore.ServerLog, startMs, endMs, minLevel(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	clientLogs, err := analyzer.LogHistoryAggregate(ctx, data, appstore.ClientLog, startMs, endMs, minLevel(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	pages, referrers, err := analyzer.PageRanks(ctx, data, startMs, endMs)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, &historyView{
		Users:      audience.Users,
		Views:      audience.Views,
		ServerLogs: serverLogs,
		ClientLogs: clientLogs,
		Pages:      pages,
		Referrers:  referrers,
	})
}

func (s *Server) handleServerLogs(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	s.handleLogs(c, app, appstore.ServerLog)
}

func (s *Server) handleClientLogs(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	s.handleLogs(c, app, appstore.ClientLog)
}

func (s *Server) handleLogs(c *gin.Context, app *store.App, kind appstore.LogKind) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	startMs, endMs := timeRange(c, dayLengthMs)
	logs, err := data.GetLogs(c.Request.Context(), kind, startMs, endMs, minLevel(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	if logs == nil {
		logs = []*appstore.Log{}
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleMetrics(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	startMs, endMs := timeRange(c, dayLengthMs)
	overview, err := analyzer.MetricsOverviewAggregate(c.Request.Context(), data, startMs, endMs)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) handleFeedback(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	startMs, endMs := timeRange(c, s.cfg.Analysis.HistoryPeriod.Duration().Milliseconds())
	feedback, err := data.GetFeedback(c.Request.Context(), startMs, endMs)
	if err != nil {
		s.fail(c, err)
		return
	}

	if feedback == nil {
		feedback = []*appstore.Feedback{}
	}
	c.JSON(http.StatusOK, feedback)
}

// =============================================================================
// Permission grants
// =============================================================================

// grantView is one grant row with the grantee's username resolved.
type grantView struct {
	UserID      int64              `json:"userID"`
	Username    string             `json:"username"`
	Permissions []perms.Capability `json:"permissions"`
}

func (s *Server) handleListGrants(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	grants, err := s.store.GetGrantsByApp(app.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	views := make([]*grantView, 0, len(grants))
	for _, g := range grants {
		view := &grantView{UserID: g.UserID, Permissions: g.Mask.List()}
		if user, err := s.store.GetUserByID(g.UserID); err == nil {
			view.Username = user.Username
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, views)
}

type upsertGrantRequest struct {
	Username    string              `json:"username"`
	UserID      int64               `json:"userID"`
	Permissions perms.PermissionSet `json:"permissions"`
}

func (s *Server) handleUpsertGrant(c *gin.Context, app *store.App, grant perms.PermissionSet) {
	var req upsertGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidValue, "Permissions must be a mask or a list of capability names"))
		return
	}

	target, err := s.resolveGrantee(req.Username, req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	if target.ID == app.OwnerID {
		s.fail(c, errors.Forbidden("The owner's permissions cannot be changed"))
		return
	}

	// A grantor can only delegate capabilities they themselves hold.
	granted := perms.Apply(req.Permissions, grant, false)

	if err := s.store.UpsertGrant(app.ID, target.ID, granted); err != nil {
		s.fail(c, err)
		return
	}

	log.Info("grant updated", "app", app.ID, "user", target.ID, "mask", granted.Mask())
	c.JSON(http.StatusOK, &grantView{
		UserID:      target.ID,
		Username:    target.Username,
		Permissions: granted.List(),
	})
}

func (s *Server) handleDeleteGrant(c *gin.Context, app *store.App, _ perms.PermissionSet) {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidValue, "User ID must be a number"))
		return
	}

	if userID == app.OwnerID {
		s.fail(c, errors.Forbidden("The owner's permissions cannot be removed"))
		return
	}

	if err := s.store.DeleteGrant(app.ID, userID); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) resolveGrantee(username string, userID int64) (*store.User, error) {
	if username != "" {
		return s.store.GetUserByUsername(username)
	}
	if userID != 0 {
		return s.store.GetUserByID(userID)
	}
	return nil, errors.Validation(errors.CodeNoName, "You need to name the user to grant permissions to")
}
