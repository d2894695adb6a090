package server

import (
	"net/http"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/gin-gonic/gin"
)

// originChecker allows the listed origins. With none configured gorilla's same-host check applies.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// GET /ws
func (s *Server) websocket(c *gin.Context) {
	refreshToken, _ := c.Cookie(s.cfg.Cookie.Name)
	session, err := s.deps.Verifier.VerifyHandshake(c.Request.Context(), refreshToken)
	if err != nil {
		s.l.Warn("WebSocket handshake rejected",
			logger.String("reason", err.Error()),
			logger.String("ip", c.ClientIP()))
		s.abortWithError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.l.Warn("WebSocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	s.l.Info("WebSocket client connected", logger.String("user_id", session.UserID))
	if err := conn.WriteJSON(session); err != nil {
		s.l.Warn("Failed to send session to WebSocket client", logger.Error(err))
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.l.Info("WebSocket client disconnected", logger.String("user_id", session.UserID))
			return
		}
	}
}
