package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AtoyanMikhail/authgate/internal/auth"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	refreshTokenHeader = "X-Refresh-Token"
	identityKey        = "identity"
)

// authenticate runs the auth gate in front of protected routes.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := auth.Request{
			SessionTokens: s.sessionTokens(c),
			Client:        clientInfo(c),
		}

		id, err := s.deps.Verifier.VerifyRequest(c.Request.Context(), req, newCookieSink(c, s.cfg.Cookie))
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		if id.Rotated {
			c.Request.Header.Set("Authorization", bearerPrefix+id.AccessToken)
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the caller resolved by the auth gate.
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok
}

func (s *Server) sessionTokens(c *gin.Context) auth.SessionTokens {
	return auth.SessionTokens{
		AccessToken:  bearerToken(c.GetHeader("Authorization")),
		RefreshToken: s.refreshToken(c),
	}
}

// refreshToken prefers the X-Refresh-Token header over the cookie.
func (s *Server) refreshToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(refreshTokenHeader)); v != "" {
		return v
	}
	v, err := c.Cookie(s.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return v
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientInfo(c *gin.Context) auth.ClientInfo {
	return auth.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// abortWithError maps auth errors onto responses. Authentication failures never say which check failed.
func (s *Server) abortWithError(c *gin.Context, err error) {
	switch {
	case auth.IsUnauthorized(err):
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorRes{Error: "Unauthorized"})
	case errors.Is(err, auth.ErrMissingCredentials):
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorRes{Error: err.Error()})
	case errors.Is(err, auth.ErrUserExists):
		c.AbortWithStatusJSON(http.StatusConflict, models.ErrorRes{Error: "User already exists"})
	default:
		s.l.Error("Request failed",
			logger.String("path", c.Request.URL.Path),
			logger.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorRes{Error: "Internal server error"})
	}
}
