// Package requestlog provides the access logging extension. It applies to
// every route unless the route declares request_log: false, tags each
// request with an X-Request-ID, and feeds the request metrics.
package requestlog

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
	"github.com/beginnings-dev/beginnings/observability"
)

// Name is the registry identifier for this extension.
const Name = "requestlog"

// RequestIDKey is the echo context key the request id is stored under.
const RequestIDKey = "request_id"

// Config is the load-time configuration.
type Config struct {
	// Header is where request ids are read from and written to.
	Header string `mapstructure:"header" validate:"required"`
	// SkipPaths suppresses logging for paths with these prefixes.
	SkipPaths []string `mapstructure:"skip_paths"`
}

// DefaultConfig returns the extension defaults.
func DefaultConfig() *Config {
	return &Config{
		Header: echo.HeaderXRequestID,
	}
}

// Extension logs one line per request and assigns request ids.
type Extension struct {
	cfg     *Config
	logger  *zap.Logger
	metrics observability.Metrics
}

// Option configures the extension.
type Option func(*Extension)

// WithLogger sets the access logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the request metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(e *Extension) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any, opts ...Option) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode requestlog config: %w", err)
	}
	ext := &Extension{
		cfg:     conf,
		logger:  zap.NewNop(),
		metrics: observability.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(ext)
	}
	return ext, nil
}

// Factory returns a registry factory that injects the given logger and
// metrics into each loaded instance.
func Factory(logger *zap.Logger, m observability.Metrics) extension.Factory {
	return func(cfg map[string]any) (extension.Extension, error) {
		return New(cfg, WithLogger(logger), WithMetrics(m))
	}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) Class() extension.Class { return extension.ClassGeneral }

// ValidateConfig reports problems in a load-time configuration section.
func (e *Extension) ValidateConfig(cfg map[string]any) []string {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return []string{err.Error()}
	}
	return validate.Problems(conf)
}

// Applies accepts every route that does not declare request_log: false.
func (e *Extension) Applies(route extension.Route) bool {
	if b, ok := route.Config.Get("request_log").(bool); ok {
		return b
	}
	return true
}

// Middleware returns the access log wrapper for one route. Errors pass
// through to the host error handler untouched.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			rid := req.Header.Get(e.cfg.Header)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Response().Header().Set(e.cfg.Header, rid)
			c.Set(RequestIDKey, rid)

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			e.metrics.RecordRequest(req.Method, route.Path, status, duration)

			if e.skipped(req.URL.Path) {
				return err
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", route.Path),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", rid),
				zap.String("remote_ip", c.RealIP()),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case status >= http.StatusInternalServerError:
				e.logger.Error("request", fields...)
			case status >= http.StatusBadRequest:
				e.logger.Warn("request", fields...)
			default:
				e.logger.Info("request", fields...)
			}
			return err
		}
	}, nil
}

func (e *Extension) skipped(path string) bool {
	for _, prefix := range e.cfg.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequestID retrieves the request id from an echo context, or "".
func RequestID(c echo.Context) string {
	if rid, ok := c.Get(RequestIDKey).(string); ok {
		return rid
	}
	return ""
}
