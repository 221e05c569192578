// Package server exposes the report pipeline over HTTP. Each request parses
// its own upload and runs its own pipeline; the rate limiter is the only
// state shared between requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
)

// Config configures a Server.
type Config struct {
	Addr string
	// MaxUploadBytes caps the request body; 0 means 20 MiB.
	MaxUploadBytes int64
	// RatePerSec and Burst throttle report requests; RatePerSec <= 0
	// disables throttling.
	RatePerSec float64
	Burst      int

	Options pipeline.Options
	// GroupBy and Period apply when a request names none.
	GroupBy []string
	Period  string
	TopN    int
	XLSX    report.XLSXOptions

	Logger *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter
	engine  *gin.Engine
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}

	r := gin.New()
	r.Use(requestID(), recovery(log), requestLogger(log))
	r.GET("/healthz", s.handleHealth)
	api := r.Group("/api/v1", rateLimit(s.limiter))
	api.POST("/reports", s.handleReport)
	s.engine = r
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
