// Package extension defines the capability interface for configuration-driven
// middleware providers and the registry that loads them.
//
// An extension is loaded once with its own configuration section, then
// consulted for every registered route: if its Applies predicate accepts the
// route's resolved configuration, its Middleware factory may contribute one
// wrapper to the route's chain. Security-class extensions always wrap before
// general-class ones.
package extension

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/beginnings-dev/beginnings/routing"
)

// Class partitions extensions for middleware ordering.
type Class int

const (
	// ClassGeneral extensions wrap after every security extension.
	ClassGeneral Class = iota
	// ClassSecurity extensions wrap first in every chain.
	ClassSecurity
)

func (c Class) String() string {
	if c == ClassSecurity {
		return "security"
	}
	return "general"
}

// RouteKind is the registration surface a route came from.
type RouteKind string

const (
	// KindAPI routes serve JSON clients.
	KindAPI RouteKind = "api"
	// KindHTML routes serve browser pages and forms.
	KindHTML RouteKind = "html"
)

// Route describes one registered route during chain building.
type Route struct {
	// Path is the registration path as given to the router.
	Path string
	// Methods are the canonical HTTP methods the route serves.
	Methods []string
	// Kind is the registration surface.
	Kind RouteKind
	// Config is the resolved configuration for the route.
	Config routing.ResolvedConfig
}

// Extension is a loadable capability that contributes middleware to routes
// based on their resolved configuration.
type Extension interface {
	// Name identifies the extension. Names are unique within a registry.
	Name() string

	// Class determines where the extension's wrappers sit in a chain.
	Class() Class

	// ValidateConfig checks a load-time configuration section and returns
	// human-readable problems. Empty means valid.
	ValidateConfig(cfg map[string]any) []string

	// Applies reports whether the extension wants to wrap the route.
	Applies(route Route) bool

	// Middleware returns the wrapper for a route. A nil wrapper with a nil
	// error means no contribution.
	Middleware(route Route) (echo.MiddlewareFunc, error)
}

// Starter is implemented by extensions that need startup work. Startup hooks
// run in load order before the server accepts traffic.
type Starter interface {
	Startup(ctx context.Context) error
}

// Stopper is implemented by extensions that need shutdown work. Shutdown
// hooks run in reverse load order during graceful shutdown.
type Stopper interface {
	Shutdown(ctx context.Context) error
}

// Factory builds an extension from its load-time configuration section.
type Factory func(cfg map[string]any) (Extension, error)
