package devbackend

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-console/internal/auth"
	"campaign-console/internal/gateway"
	"campaign-console/pkg/logger"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "name, email and a password of at least 8 characters are required")
		return
	}
	u, err := s.store.CreateUser(req.Name, req.Email, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		abort(c, http.StatusConflict, "an account with this email already exists")
		return
	}
	if err != nil {
		s.abortErr(c, err)
		return
	}
	if !s.startSession(c, u) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "email and password are required")
		return
	}
	u, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		logger.FromGin(c).Info("login rejected", "email", req.Email)
		abort(c, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !s.startSession(c, u) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (s *Server) startSession(c *gin.Context, u gateway.User) bool {
	tok, _, err := s.auth.Issue(s.opts.Now(), u.ID, u.Email)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		abort(c, http.StatusInternalServerError, "token issuance failed")
		return false
	}
	auth.SetSessionCookie(c, tok, s.auth.TTL(), s.opts.SecureCookies)
	return true
}

func (s *Server) logout(c *gin.Context) {
	auth.ClearSessionCookie(c, s.opts.SecureCookies)
	c.Status(http.StatusNoContent)
}

// status never fails with 401; an absent or stale cookie is reported as unauthenticated.
func (s *Server) status(c *gin.Context) {
	tok := auth.SessionToken(c)
	if tok == "" {
		c.JSON(http.StatusOK, gateway.AuthStatus{})
		return
	}
	claims, err := s.auth.Verify(tok, time.Now())
	if err != nil {
		c.JSON(http.StatusOK, gateway.AuthStatus{})
		return
	}
	u, err := s.store.User(claims.UserID)
	if err != nil {
		c.JSON(http.StatusOK, gateway.AuthStatus{})
		return
	}
	c.JSON(http.StatusOK, gateway.AuthStatus{Authenticated: true, User: &u})
}

func (s *Server) profile(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "not authenticated")
		return
	}
	u, err := s.store.User(uid)
	if err != nil {
		abort(c, http.StatusUnauthorized, "not authenticated")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
