// Package ratelimit provides the token bucket rate limiting extension.
// Routes opt in through a rate_limit key: a bare number is requests per
// second, a mapping sets rate, burst, and the key strategy, and true applies
// the extension defaults.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
)

// Name is the registry identifier for this extension.
const Name = "ratelimit"

// Config is the load-time configuration. Route entries override Rate, Burst,
// and By per route.
type Config struct {
	// Rate is the default sustained requests per second.
	Rate int `mapstructure:"rate" validate:"gte=0"`
	// Burst is the default bucket capacity. A route that sets rate_limit to
	// a bare number gets a burst equal to that rate instead.
	Burst int `mapstructure:"burst" validate:"gte=0"`
	// By selects the bucket key: "ip" buckets per client address, "path"
	// throttles the route as a whole.
	By string `mapstructure:"by" validate:"omitempty,oneof=ip path"`
	// TTL drops buckets unused for this long.
	TTL time.Duration `mapstructure:"ttl"`
	// CleanupInterval is how often expired buckets are collected.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultConfig returns the extension defaults.
func DefaultConfig() *Config {
	return &Config{
		Rate:            10,
		Burst:           20,
		By:              "ip",
		TTL:             10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Extension enforces per-client token buckets on routes that declare a
// rate_limit key.
type Extension struct {
	cfg   *Config
	store *Store
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode ratelimit config: %w", err)
	}
	return &Extension{
		cfg:   conf,
		store: NewStore(conf.CleanupInterval, conf.TTL),
	}, nil
}

// Factory adapts New to the registry factory signature.
func Factory(cfg map[string]any) (extension.Extension, error) {
	return New(cfg)
}

func (e *Extension) Name() string { return Name }

func (e *Extension) Class() extension.Class { return extension.ClassSecurity }

// ValidateConfig reports problems in a load-time configuration section.
func (e *Extension) ValidateConfig(cfg map[string]any) []string {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return []string{err.Error()}
	}
	return validate.Problems(conf)
}

// Applies accepts routes with a rate_limit key unless it is literally false.
func (e *Extension) Applies(route extension.Route) bool {
	if !route.Config.Has("rate_limit") {
		return false
	}
	if b, ok := route.Config.Get("rate_limit").(bool); ok {
		return b
	}
	return true
}

// Middleware returns the limiter wrapper for one route. A zero rate means
// the route opted out, so there is no contribution.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	settings, err := e.routeSettings(route)
	if err != nil {
		return nil, err
	}
	if settings.rate == 0 {
		return nil, nil
	}

	limit := rate.Limit(settings.rate)
	burst := settings.burst
	key := bucketKey(settings.by, route.Path)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !e.store.Allow(key(c), limit, burst) {
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}, nil
}

// Startup begins bucket expiry.
func (e *Extension) Startup(ctx context.Context) error {
	e.store.Start()
	return nil
}

// Shutdown stops bucket expiry.
func (e *Extension) Shutdown(ctx context.Context) error {
	e.store.Stop()
	return nil
}

// Store exposes the limiter table for inspection.
func (e *Extension) Store() *Store { return e.store }

type routeSettings struct {
	rate  int
	burst int
	by    string
}

// routeSettings reads the rate_limit value in its three accepted forms.
func (e *Extension) routeSettings(route extension.Route) (routeSettings, error) {
	s := routeSettings{rate: e.cfg.Rate, burst: e.cfg.Burst, by: e.cfg.By}

	raw := route.Config.Get("rate_limit")
	if _, isBool := raw.(bool); isBool {
		// true keeps the defaults; Applies already filtered false
	} else if sec := route.Config.Section("rate_limit"); sec != nil {
		s.rate = sec.IntOr("rate", s.rate)
		s.burst = sec.IntOr("burst", s.burst)
		s.by = sec.StringOr("by", s.by)
	} else {
		n, err := cast.ToIntE(raw)
		if err != nil {
			return s, fmt.Errorf("rate_limit must be a number, boolean, or mapping, got %T", raw)
		}
		s.rate = n
		s.burst = n
	}

	if s.rate < 0 {
		return s, fmt.Errorf("rate_limit cannot be negative")
	}
	if s.by != "ip" && s.by != "path" {
		return s, fmt.Errorf("rate_limit key strategy must be ip or path, got %q", s.by)
	}
	if s.rate > 0 && s.burst < 1 {
		s.burst = s.rate
	}
	return s, nil
}

// bucketKey builds the limiter key function for a route. The route path is
// always part of the key so routes never share buckets.
func bucketKey(by, path string) func(echo.Context) string {
	if by == "path" {
		return func(echo.Context) string { return path }
	}
	return func(c echo.Context) string { return path + "|" + c.RealIP() }
}
