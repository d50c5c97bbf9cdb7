package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mstefan99/beacon/internal/errors"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}
	if req.Username == "" || req.Password == "" {
		s.fail(c, errors.Validation(errors.CodeNoCredentials, "You need to provide both username and password"))
		return
	}

	user, session, err := s.auth.Login(req.Username, req.Password, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		s.fail(c, err)
		return
	}

	maxAge := int(s.cfg.Auth.SessionTTL.Duration().Seconds())
	c.SetCookie(sessionCookie, session.PublicID, maxAge, "/", "", false, true)

	c.JSON(http.StatusOK, gin.H{
		"token": session.PublicID,
		"user":  user,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	session := GetSession(c)

	if err := s.auth.Logout(session.PublicID); err != nil {
		s.fail(c, err)
		return
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, GetUser(c))
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Validation(errors.CodeInvalidBody, "Request body must be valid JSON"))
		return
	}
	if req.Current == "" || req.New == "" {
		s.fail(c, errors.Validation(errors.CodeNoCredentials, "You need to provide both the current and the new password"))
		return
	}

	if err := s.auth.ChangePassword(GetUser(c), req.Current, req.New); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
