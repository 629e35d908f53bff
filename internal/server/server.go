// Package server exposes the parser and the risk gate over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"signal-trading-bot/internal/execution"
	"signal-trading-bot/internal/interfaces"
	"signal-trading-bot/internal/llm"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/risk"
	"signal-trading-bot/internal/whitelist"
)

type Option func(*Server)

// WithCache enables the /v1/cache endpoints.
func WithCache(c *whitelist.Cache) Option { return func(s *Server) { s.cache = c } }

// WithPool enables /v1/ai/status.
func WithPool(p *llm.Pool) Option { return func(s *Server) { s.pool = p } }

// WithExecutor enables /v1/positions and manual closes.
func WithExecutor(e *execution.Paper) Option { return func(s *Server) { s.exec = e } }

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

type Server struct {
	echo     *echo.Echo
	addr     string
	parser   interfaces.Parser
	sentinel *risk.Sentinel
	cache    *whitelist.Cache
	pool     *llm.Pool
	exec     *execution.Paper
	metrics  http.Handler
	started  time.Time
}

func New(addr string, parser interfaces.Parser, sentinel *risk.Sentinel, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		parser:   parser,
		sentinel: sentinel,
		started:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverer(), requestLogging())
	s.echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/health", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := e.Group("/v1")
	v1.POST("/parse", s.parse)
	v1.POST("/validate", s.validateSignal)
	v1.GET("/risk", s.riskMetrics)
	v1.GET("/risk/lists", s.lists)
	v1.POST("/risk/lists", s.editList)
	v1.POST("/risk/breaker/reset", s.resetBreaker)
	v1.POST("/killswitch", s.killSwitch)
	if s.cache != nil {
		v1.GET("/cache/stats", s.cacheStats)
		v1.POST("/cache/flush", s.cacheFlush)
	}
	if s.pool != nil {
		v1.GET("/ai/status", s.aiStatus)
	}
	if s.exec != nil {
		v1.GET("/positions", s.positions)
		v1.POST("/positions/:symbol/close", s.closePosition)
	}
}

// Handler is the routed echo instance, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info(ctx, "HTTP server stopped")
	return nil
}

func recoverer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(c.Request().Context(), "Panic in handler", "panic", fmt.Sprint(r), "path", c.Path())
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}

func requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			logger.Debug(req.Context(), "HTTP request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}
