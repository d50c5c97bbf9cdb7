package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/store"
)

// metricRequest is a server-origin device metric sample. Every field is
// optional; reporters send what they have.
type metricRequest struct {
	Device    *string  `json:"device"`
	CPU       *float64 `json:"cpu"`
	MemUsed   *float64 `json:"memUsed"`
	MemTotal  *float64 `json:"memTotal"`
	NetUp     *float64 `json:"netUp"`
	NetDown   *float64 `json:"netDown"`
	DiskUsed  *float64 `json:"diskUsed"`
	DiskTotal *float64 `json:"diskTotal"`
}

func (s *Server) handleTelemetryLog(c *gin.Context) {
	app := c.MustGet(ctxApp).(*store.App)

	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}
	if req.Message == "" || req.Level == nil {
		s.fail(c, errors.Validation(errors.CodeNoMessageOrLevel, "You need to provide both message and level"))
		return
	}

	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	if _, err := data.RecordLog(c.Request.Context(), appstore.ServerLog, req.Message, *req.Level, req.Tag); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

func (s *Server) handleTelemetryMetric(c *gin.Context) {
	app := c.MustGet(ctxApp).(*store.App)

	var req metricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}

	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	metric := appstore.Metric{
		Device:    req.Device,
		CPU:       req.CPU,
		MemUsed:   req.MemUsed,
		MemTotal:  req.MemTotal,
		NetUp:     req.NetUp,
		NetDown:   req.NetDown,
		DiskUsed:  req.DiskUsed,
		DiskTotal: req.DiskTotal,
	}

	if _, err := data.RecordMetric(c.Request.Context(), metric); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}
