package server

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/store"
)

// hitRequest is a browser-origin page view. ccs is the client token minted
// on first contact and echoed back on subsequent hits.
type hitRequest struct {
	CCS      string  `json:"ccs"`
	URL      string  `json:"url"`
	Referrer *string `json:"referrer"`
}

type logRequest struct {
	Message string  `json:"message"`
	Level   *int    `json:"level"`
	Tag     *string `json:"tag"`
}

type feedbackRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleAudienceHit(c *gin.Context) {
	app := c.MustGet(ctxApp).(*store.App)

	var req hitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}
	if req.URL == "" {
		s.fail(c, errors.Validation(errors.CodeNoURL, "You must provide a URL to record a hit to"))
		return
	}

	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	client, err := s.resolveClient(c, data, req.CCS)
	if err != nil {
		s.fail(c, err)
		return
	}

	referrer := filterReferrer(req.Referrer, c.GetHeader("Origin"))

	if _, err := data.RecordHit(c.Request.Context(), client, req.URL, referrer); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": client.ID})
}

func (s *Server) handleAudienceLog(c *gin.Context) {
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

	if _, err := data.RecordLog(c.Request.Context(), appstore.ClientLog, req.Message, *req.Level, req.Tag); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

func (s *Server) handleAudienceFeedback(c *gin.Context) {
	app := c.MustGet(ctxApp).(*store.App)

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}
	if req.Message == "" {
		s.fail(c, errors.Validation(errors.CodeNoMessage, "You need to provide a message"))
		return
	}

	data, err := s.appData(app)
	if err != nil {
		s.fail(c, err)
		return
	}

	if _, err := data.RecordFeedback(c.Request.Context(), req.Message); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// resolveClient echoes a known client token back, or mints a fresh client
// from the request's agent headers. An unknown token is not an error; the
// caller simply gets a new identity.
func (s *Server) resolveClient(c *gin.Context, data *appstore.AppData, ccs string) (*appstore.Client, error) {
	if ccs != "" {
		client, err := data.GetClient(c.Request.Context(), ccs)
		if err != nil {
			return nil, err
		}
		if client != nil {
			return client, nil
		}
	}

	return data.CreateClient(c.Request.Context(),
		c.GetHeader("User-Agent"), c.GetHeader("Accept-Language"))
}

// filterReferrer drops referrers pointing back at the tracked site itself,
// so internal navigation does not pollute acquisition stats.
func filterReferrer(referrer *string, origin string) *string {
	if referrer == nil || *referrer == "" {
		return nil
	}
	if origin == "" {
		return referrer
	}

	refURL, err := url.Parse(*referrer)
	if err != nil {
		return referrer
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return referrer
	}

	if refURL.Host != "" && refURL.Host == originURL.Host {
		return nil
	}
	return referrer
}
