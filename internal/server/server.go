// Package server assembles the HTTP surface: the REST API, one websocket
// endpoint per hub channel, health and metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/ws"
)

// HubPathPrefix is where hub endpoints are mounted: /hubs/<channel>.
const HubPathPrefix = "/hubs/"

// RouteRegistrar mounts routes on the engine.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

type endpoint struct {
	hub     *ws.Hub
	handler http.Handler
}

// Server is the main HTTP server for socialhub.
type Server struct {
	addr            string
	engine          *gin.Engine
	endpoints       []endpoint
	api             RouteRegistrar
	log             zerolog.Logger
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAPI mounts the REST routes.
func WithAPI(api RouteRegistrar) Option {
	return func(s *Server) {
		s.api = api
	}
}

// WithHub serves h at /hubs/<hub name> and reports the hub on /health.
// The hub is shut down before the listener on graceful shutdown.
func WithHub(hub *ws.Hub, h http.Handler) Option {
	return func(s *Server) {
		s.endpoints = append(s.endpoints, endpoint{hub: hub, handler: h})
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// New creates a new Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		log:             zerolog.Nop(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every hub
// session with "going away" and drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	for _, ep := range s.endpoints {
		ep.hub.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("http server shutdown")
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	for _, ep := range s.endpoints {
		s.engine.GET(HubPathPrefix+ep.hub.Name(), gin.WrapH(ep.handler))
	}
	if s.api != nil {
		s.api.RegisterRoutes(s.engine)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	hubs := make(map[string]ws.HubStats, len(s.endpoints))
	for _, ep := range s.endpoints {
		hubs[ep.hub.Name()] = ep.hub.Stats()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "hubs": hubs})
}

// requestLogger logs each request and records its duration by route
// template, so ids in paths do not explode label cardinality.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		event := s.log.Debug()
		if status >= http.StatusInternalServerError {
			event = s.log.Warn()
		}
		event.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
