// Package server exposes the recommender over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/autotone/config"
	"github.com/krau/autotone/metrics"
	"github.com/krau/autotone/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	rec       *service.Recommender
	logger    zerolog.Logger
	token     string
	maxUpload int64
}

// New creates a Server for rec configured from cfg.
func New(rec *service.Recommender, cfg config.Config, logger zerolog.Logger) *Server {
	return &Server{
		rec:       rec,
		logger:    logger.With().Str("component", "http").Logger(),
		token:     cfg.Token,
		maxUpload: int64(cfg.MaxUploadMB) << 20,
	}
}

// Init builds the gin engine with every route registered.
func (s *Server) Init() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.maxUpload
	r.Use(gin.Recovery(), s.accessLog)

	r.GET("/health", s.HealthHandler)
	r.GET("/readyz", s.ReadyHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/adjustments", s.AdjustmentsHandler)

	api := r.Group("/", s.requireToken)
	api.POST("/analyze", s.AnalyzeHandler)
	api.GET("/sessions/:id", s.SessionHandler)
	api.POST("/sessions/:id/adjust", s.AdjustHandler)
	api.GET("/sessions/:id/image", s.ImageHandler)
	return r
}

// accessLog records request metrics by route pattern and logs each request.
func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	took := time.Since(start)
	status := c.Writer.Status()
	metrics.ObserveHTTP(path, c.Request.Method, status, took.Seconds())
	s.logger.Debug().
		Str("method", c.Request.Method).
		Str("path", path).
		Int("status", status).
		Dur("took", took).
		Msg("request")
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Init(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
