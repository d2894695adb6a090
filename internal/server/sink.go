package server

import (
	"net/http"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/config"
	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// cookieSink writes session state into a gin response.
type cookieSink struct {
	c   *gin.Context
	cfg config.CookieConfig
}

func newCookieSink(c *gin.Context, cfg config.CookieConfig) *cookieSink {
	return &cookieSink{c: c, cfg: cfg}
}

func (s *cookieSink) SetRefreshCookie(refreshToken string, maxAge time.Duration) {
	s.c.SetSameSite(http.SameSiteStrictMode)
	s.c.SetCookie(s.cfg.Name, refreshToken, int(maxAge/time.Second), "/", s.cfg.Domain, s.cfg.Secure, true)
}

func (s *cookieSink) ClearRefreshCookie() {
	s.c.SetSameSite(http.SameSiteStrictMode)
	s.c.SetCookie(s.cfg.Name, "", -1, "/", s.cfg.Domain, s.cfg.Secure, true)
}

func (s *cookieSink) SetAccessToken(accessToken string) {
	s.c.Header("Authorization", bearerPrefix+accessToken)
}

func (s *cookieSink) ClearAccessToken() {
	s.c.Writer.Header().Del("Authorization")
}
