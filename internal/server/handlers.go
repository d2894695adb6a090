package server

import (
	"context"
	"net/http"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/auth"
	"github.com/AtoyanMikhail/authgate/internal/models"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

func tokenRes(issued *auth.IssuedTokens) models.TokenRes {
	return models.TokenRes{
		AccessToken: issued.AccessToken,
		TokenType:   issued.TokenType,
		ExpiresIn:   issued.ExpiresIn,
	}
}

// POST /auth/register
func (s *Server) register(c *gin.Context) {
	var req models.RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorRes{Error: err.Error()})
		return
	}

	issued, err := s.deps.Service.Register(c.Request.Context(), auth.RegisterInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
	}, clientInfo(c), newCookieSink(c, s.cfg.Cookie))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tokenRes(issued))
}

// POST /auth/login
func (s *Server) login(c *gin.Context) {
	var req models.LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorRes{Error: err.Error()})
		return
	}

	issued, err := s.deps.Service.Login(c.Request.Context(), auth.Credentials{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}, clientInfo(c), newCookieSink(c, s.cfg.Cookie))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenRes(issued))
}

// POST /auth/refresh
func (s *Server) refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(s.cfg.Cookie.Name)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorRes{Error: "Refresh token is missing."})
		return
	}

	issued, err := s.deps.Service.Refresh(c.Request.Context(), refreshToken, clientInfo(c), newCookieSink(c, s.cfg.Cookie))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenRes(issued))
}

// POST /auth/logout
func (s *Server) logout(c *gin.Context) {
	ok, err := s.deps.Revoker.Logout(c.Request.Context(), s.sessionTokens(c), newCookieSink(c, s.cfg.Cookie))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessRes{Success: ok})
}

// POST /auth/logout-all
func (s *Server) logoutAll(c *gin.Context) {
	ok, err := s.deps.Revoker.LogoutAll(c.Request.Context(), s.sessionTokens(c), newCookieSink(c, s.cfg.Cookie))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessRes{Success: ok})
}

// GET /auth/me
func (s *Server) me(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		s.abortWithError(c, auth.ErrMissingToken)
		return
	}

	user, err := s.deps.Service.Me(c.Request.Context(), id.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MeRes{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}

// GET /healthz
func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	res := models.HealthRes{Status: "ok", Checks: make(map[string]string, len(s.deps.Pingers))}
	status := http.StatusOK
	for name, p := range s.deps.Pingers {
		if err := p.Ping(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}

	c.JSON(status, res)
}
