// Package app wires the framework together: it owns the host echo instance,
// the route configuration resolver, the extension registry, and the chain
// builder, and exposes the HTML and API registration surfaces applications
// register their handlers through.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/config"
	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/extension/builtin"
	"github.com/beginnings-dev/beginnings/middleware"
	"github.com/beginnings-dev/beginnings/observability"
	"github.com/beginnings-dev/beginnings/routing"
)

// ShutdownHook is a function that gets called during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// App is the main application instance. Routes registered through its HTML
// and API surfaces get their configuration resolved and their middleware
// chain composed before the handler reaches echo.
type App struct {
	e         *echo.Echo
	cfg       *config.Config
	logger    *zap.Logger
	metrics   observability.Metrics
	factories map[string]extension.Factory

	resolver *routing.Resolver
	registry *extension.Registry
	builder  *middleware.Builder

	watcher *config.Watcher

	mu              sync.Mutex
	shutdownHooks   []ShutdownHook
	shutdownTimeout time.Duration
}

// Option defines a functional option for App.
type Option func(*App) error

// WithConfig sets the application configuration.
func WithConfig(cfg *config.Config) Option {
	return func(app *App) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		app.cfg = cfg
		if cfg.App.ShutdownTimeout > 0 {
			app.shutdownTimeout = cfg.App.ShutdownTimeout
		}
		return nil
	}
}

// WithLogger sets the application logger.
func WithLogger(logger *zap.Logger) Option {
	return func(app *App) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		app.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector shared by the resolver, the chain
// builder, and the request logging extension.
func WithMetrics(m observability.Metrics) Option {
	return func(app *App) error {
		if m == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		app.metrics = m
		return nil
	}
}

// WithFactories replaces the built-in extension factory table.
func WithFactories(factories map[string]extension.Factory) Option {
	return func(app *App) error {
		if factories == nil {
			return fmt.Errorf("factories cannot be nil")
		}
		app.factories = factories
		return nil
	}
}

// WithShutdownTimeout sets the shutdown timeout duration.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(app *App) error {
		if timeout <= 0 {
			return fmt.Errorf("shutdown timeout must be positive")
		}
		app.shutdownTimeout = timeout
		return nil
	}
}

// NewApp creates a new application instance with the given options. The
// configured extensions are loaded in declaration order; a single extension
// failing to load is logged and does not abort construction.
func NewApp(opts ...Option) (*App, error) {
	app := &App{
		e:               echo.New(),
		cfg:             config.DefaultConfig(),
		logger:          zap.NewNop(),
		metrics:         observability.NewNoOpCollector(),
		shutdownTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if app.factories == nil {
		app.factories = builtin.Factories(app.logger, app.metrics)
	}

	app.resolver = routing.NewResolver(app.cfg.Routing(),
		routing.WithLogger(app.logger),
		routing.WithMetrics(app.metrics))
	app.registry = extension.NewRegistry(app.factories,
		extension.WithLogger(app.logger),
		extension.WithMetrics(app.metrics))
	app.builder = middleware.NewBuilder(app.registry,
		middleware.WithLogger(app.logger),
		middleware.WithMetrics(app.metrics))

	app.loadExtensions()
	app.setupEcho()

	if app.cfg.App.Dev {
		app.registerDevelopmentRoutes()
	}

	return app, nil
}

// loadExtensions loads every configured extension. Failures surface in the
// log per extension; they never block the application.
func (app *App) loadExtensions() {
	for _, ext := range app.cfg.Extensions {
		if err := app.registry.Load(ext.Name, ext.Config); err != nil {
			app.logger.Error("extension load failed, continuing without it",
				zap.String("extension", ext.Name),
				zap.Error(err))
		}
	}
}

// setupEcho configures the host echo instance.
func (app *App) setupEcho() {
	app.e.HideBanner = true
	app.e.HidePort = true
	app.e.Use(echomw.Recover())

	if app.cfg.Metrics.Enabled {
		if h, ok := app.metrics.(interface{ Handler() http.Handler }); ok {
			app.e.GET(app.cfg.Metrics.Path, echo.WrapHandler(h.Handler()))
		}
	}
}

// Echo returns the underlying echo instance.
func (app *App) Echo() *echo.Echo { return app.e }

// Config returns the application configuration.
func (app *App) Config() *config.Config { return app.cfg }

// Resolver returns the route configuration resolver.
func (app *App) Resolver() *routing.Resolver { return app.resolver }

// Registry returns the extension registry.
func (app *App) Registry() *extension.Registry { return app.registry }

// HTML returns the registration surface for browser-facing routes.
func (app *App) HTML() *Router {
	return &Router{app: app, kind: extension.KindHTML}
}

// API returns the registration surface for JSON routes.
func (app *App) API() *Router {
	return &Router{app: app, kind: extension.KindAPI}
}

// Watch hot-reloads the route configuration whenever the loader's source
// files change. The watcher stops during shutdown.
func (app *App) Watch(loader *config.Loader) error {
	watcher, err := config.NewWatcher(loader, func(cfg *config.Config) {
		app.resolver.Reload(cfg.Routing())
	}, config.WithWatcherLogger(app.logger))
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	app.mu.Lock()
	app.watcher = watcher
	app.mu.Unlock()

	watcher.Start()
	app.logger.Info("watching configuration", zap.String("path", loader.Path()))
	return nil
}

// Run starts extension lifecycle hooks and then the HTTP server. It blocks
// until the server stops.
func (app *App) Run() error {
	if err := app.registry.Startup(context.Background()); err != nil {
		// Per-extension startup failures were already logged and recorded;
		// the remaining extensions are up, so the server still starts.
		app.logger.Warn("some extensions failed to start", zap.Error(err))
	}

	address := app.cfg.Server.Address
	if address == "" {
		address = ":8080"
	}
	app.e.Server.ReadTimeout = app.cfg.Server.ReadTimeout
	app.e.Server.WriteTimeout = app.cfg.Server.WriteTimeout
	app.e.Server.IdleTimeout = app.cfg.Server.IdleTimeout

	app.logger.Info("starting server",
		zap.String("address", address),
		zap.Int("extensions", app.registry.Len()))
	return app.e.Start(address)
}

// RegisterShutdownHook registers a function to be called during shutdown.
// Hooks run after the server and the extensions have stopped, in reverse
// registration order.
func (app *App) RegisterShutdownHook(hook ShutdownHook) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.shutdownHooks = append(app.shutdownHooks, hook)
}

// OnShutdown is a convenience method for registering shutdown hooks.
func (app *App) OnShutdown(fn func(context.Context) error) {
	app.RegisterShutdownHook(ShutdownHook(fn))
}

// Shutdown gracefully stops the server, then the extensions in reverse load
// order, then the registered shutdown hooks. Every stage runs regardless of
// earlier failures; the failures come back joined.
func (app *App) Shutdown(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.shutdownTimeout)
		defer cancel()
	}

	app.logger.Info("starting graceful shutdown")

	app.mu.Lock()
	watcher := app.watcher
	app.mu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}

	var errs []error
	if err := app.e.Shutdown(ctx); err != nil {
		app.logger.Error("error shutting down HTTP server", zap.Error(err))
		errs = append(errs, err)
	}
	if err := app.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := app.runShutdownHooks(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		app.logger.Info("graceful shutdown completed")
	}
	return errors.Join(errs...)
}

// runShutdownHooks executes the registered hooks in reverse registration
// order, continuing past failures.
func (app *App) runShutdownHooks(ctx context.Context) error {
	app.mu.Lock()
	hooks := make([]ShutdownHook, len(app.shutdownHooks))
	copy(hooks, app.shutdownHooks)
	app.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown hooks timed out: %w", err))
			break
		}
		if err := hooks[i](ctx); err != nil {
			app.logger.Error("shutdown hook failed",
				zap.Int("index", i),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown hook %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
