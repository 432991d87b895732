package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/observability"
)

// Registry holds loaded extensions in load order. The factory table is
// injected at construction; there is no global registration.
type Registry struct {
	factories map[string]Factory
	logger    *zap.Logger
	metrics   observability.Metrics

	mu     sync.RWMutex
	loaded []Extension
	byName map[string]Extension
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for load and lifecycle reporting.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collector lifecycle failures are reported to.
func WithMetrics(m observability.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates a registry over the given factory table.
func NewRegistry(factories map[string]Factory, opts ...RegistryOption) *Registry {
	table := make(map[string]Factory, len(factories))
	for name, factory := range factories {
		table[name] = factory
	}
	r := &Registry{
		factories: table,
		logger:    zap.NewNop(),
		metrics:   observability.NewNoOpCollector(),
		byName:    make(map[string]Extension),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Factories returns the registered factory names.
func (r *Registry) Factories() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Load builds the identified extension with cfg and appends it to the load
// order. It returns a LoadError for a malformed identifier, an unknown
// factory, or a factory failure; an InitError when the extension rejects its
// configuration; and a DuplicateError for a repeated name. One extension's
// failure never affects already loaded extensions.
func (r *Registry) Load(identifier string, cfg map[string]any) error {
	name := strings.TrimSpace(identifier)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return &LoadError{Identifier: identifier, Reason: "malformed identifier"}
	}
	factory, ok := r.factories[name]
	if !ok {
		return &LoadError{Identifier: name, Reason: "no factory registered"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[name]; dup {
		return &DuplicateError{Name: name}
	}

	ext, err := factory(cfg)
	if err != nil {
		return &LoadError{Identifier: name, Reason: "factory failed", Err: err}
	}
	if problems := ext.ValidateConfig(cfg); len(problems) > 0 {
		return &InitError{Name: name, Problems: problems}
	}

	r.loaded = append(r.loaded, ext)
	r.byName[name] = ext
	r.logger.Info("extension loaded",
		zap.String("extension", name),
		zap.String("class", ext.Class().String()))
	return nil
}

// Get returns the loaded extension under name.
func (r *Registry) Get(name string) (Extension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext, ok := r.byName[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return ext, nil
}

// List returns the loaded extensions in load order.
func (r *Registry) List() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.loaded...)
}

// Len returns the number of loaded extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loaded)
}

// Startup runs optional startup hooks in load order. It continues past
// individual failures and returns them joined.
func (r *Registry) Startup(ctx context.Context) error {
	var errs []error
	for _, ext := range r.List() {
		starter, ok := ext.(Starter)
		if !ok {
			continue
		}
		if err := starter.Startup(ctx); err != nil {
			r.logger.Error("extension startup failed",
				zap.String("extension", ext.Name()),
				zap.Error(err))
			r.metrics.RecordExtensionFailure(ext.Name(), "startup")
			errs = append(errs, fmt.Errorf("%s: %w", ext.Name(), err))
			continue
		}
		r.logger.Debug("extension started", zap.String("extension", ext.Name()))
	}
	return errors.Join(errs...)
}

// Shutdown runs optional shutdown hooks in strict reverse load order. Every
// hook runs even when earlier ones fail; failures come back joined.
func (r *Registry) Shutdown(ctx context.Context) error {
	loaded := r.List()

	var errs []error
	for i := len(loaded) - 1; i >= 0; i-- {
		ext := loaded[i]
		stopper, ok := ext.(Stopper)
		if !ok {
			continue
		}
		if err := stopper.Shutdown(ctx); err != nil {
			r.logger.Error("extension shutdown failed",
				zap.String("extension", ext.Name()),
				zap.Error(err))
			r.metrics.RecordExtensionFailure(ext.Name(), "shutdown")
			errs = append(errs, fmt.Errorf("%s: %w", ext.Name(), err))
			continue
		}
		r.logger.Debug("extension stopped", zap.String("extension", ext.Name()))
	}
	return errors.Join(errs...)
}
