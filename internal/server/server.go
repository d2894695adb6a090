package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/auth"
	"github.com/AtoyanMikhail/authgate/internal/config"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency reported by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service  *auth.Service
	Revoker  *auth.Revoker
	Verifier auth.SessionVerifier
	Pingers  map[string]Pinger
	Gatherer prometheus.Gatherer
}

type Server struct {
	cfg      *config.Config
	deps     Deps
	l        logger.Logger
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
}

// route is one entry of the routing table. Routes are protected by the auth gate unless public is set.
type route struct {
	method  string
	path    string
	public  bool
	handler gin.HandlerFunc
}

func New(cfg *config.Config, deps Deps, l logger.Logger) (*Server, error) {
	if err := registerValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		l:      l,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.WebSocket.AllowedOrigins),
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	for _, r := range s.routes() {
		handlers := []gin.HandlerFunc{r.handler}
		if !r.public {
			handlers = append([]gin.HandlerFunc{s.authenticate()}, handlers...)
		}
		s.engine.Handle(r.method, r.path, handlers...)
	}

	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
	return s, nil
}

func (s *Server) routes() []route {
	return []route{
		{method: http.MethodPost, path: "/auth/register", public: true, handler: s.register},
		{method: http.MethodPost, path: "/auth/login", public: true, handler: s.login},
		{method: http.MethodPost, path: "/auth/refresh", public: true, handler: s.refresh},
		{method: http.MethodPost, path: "/auth/logout", public: true, handler: s.logout},
		{method: http.MethodPost, path: "/auth/logout-all", public: true, handler: s.logoutAll},
		{method: http.MethodGet, path: "/auth/me", handler: s.me},
		// the handshake authenticates itself from the refresh cookie
		{method: http.MethodGet, path: "/ws", public: true, handler: s.websocket},
		{method: http.MethodGet, path: "/healthz", public: true, handler: s.healthz},
		{method: http.MethodGet, path: "/metrics", public: true, handler: gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))},
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.l.Info("HTTP server listening", logger.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.l.Debug("HTTP request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("ip", c.ClientIP()))
	}
}
