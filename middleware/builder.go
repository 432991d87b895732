package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/observability"
)

// Builder assembles per-route middleware chains from the extensions loaded
// into a registry.
type Builder struct {
	registry *extension.Registry
	logger   *zap.Logger
	metrics  observability.Metrics
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger extension failures are reported to.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the collector chain builds are reported to.
func WithMetrics(m observability.Metrics) BuilderOption {
	return func(b *Builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewBuilder creates a builder over the given registry.
func NewBuilder(registry *extension.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry: registry,
		logger:   zap.NewNop(),
		metrics:  observability.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the composed wrapper for a route, or nil when no extension
// contributes. Security-class wrappers run before general-class wrappers;
// load order is preserved within each class. A predicate or factory that
// fails or panics removes only that extension's contribution, never the
// route.
func (b *Builder) Build(route extension.Route) echo.MiddlewareFunc {
	var security, general []echo.MiddlewareFunc

	for _, ext := range b.registry.List() {
		if !b.applies(ext, route) {
			continue
		}
		mw, err := b.middleware(ext, route)
		if err != nil {
			b.logger.Error("extension middleware factory failed",
				zap.String("extension", ext.Name()),
				zap.String("path", route.Path),
				zap.Error(err))
			b.metrics.RecordExtensionFailure(ext.Name(), "factory")
			continue
		}
		if mw == nil {
			continue
		}
		if ext.Class() == extension.ClassSecurity {
			security = append(security, mw)
		} else {
			general = append(general, mw)
		}
	}

	total := len(security) + len(general)
	if total == 0 {
		return nil
	}
	b.metrics.RecordChainBuild(total, len(security))
	b.logger.Debug("middleware chain built",
		zap.String("path", route.Path),
		zap.Strings("methods", route.Methods),
		zap.Int("wrappers", total),
		zap.Int("security", len(security)))

	chain := NewChain(append(security, general...)...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return chain.Then(next)
	}
}

// applies runs the extension's predicate, treating a panic as "does not
// apply" so one broken extension cannot take the route down.
func (b *Builder) applies(ext extension.Extension, route extension.Route) (applies bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("extension predicate panicked",
				zap.String("extension", ext.Name()),
				zap.String("path", route.Path),
				zap.Any("panic", r))
			b.metrics.RecordExtensionFailure(ext.Name(), "predicate")
			applies = false
		}
	}()
	return ext.Applies(route)
}

// middleware asks the extension for its wrapper, converting a panic into an
// ordinary error.
func (b *Builder) middleware(ext extension.Extension, route extension.Route) (mw echo.MiddlewareFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			mw = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ext.Middleware(route)
}
