package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/routing"
)

// Router is one registration surface of the application. HTML and API
// routers share the app; the kind travels with every route so extensions can
// treat browser and JSON routes differently.
type Router struct {
	app  *App
	kind extension.RouteKind
}

// Kind returns the registration surface the router represents.
func (r *Router) Kind() extension.RouteKind { return r.kind }

// Handle registers a handler for the given path and methods. The route's
// configuration is resolved once, the applicable extensions wrap the handler
// with security-class middleware outermost, and the composed handler is
// registered with echo per method. Methods default to GET.
func (r *Router) Handle(path string, h echo.HandlerFunc, methods ...string) {
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	canonical := routing.CanonicalMethods(methods)

	resolved := r.app.resolver.Resolve(path, canonical...)
	route := extension.Route{
		Path:    routing.NormalizePath(path),
		Methods: canonical,
		Kind:    r.kind,
		Config:  resolved,
	}

	wrapper := r.app.builder.Build(route)
	for _, method := range canonical {
		if wrapper != nil {
			r.app.e.Add(method, path, h, wrapper)
		} else {
			r.app.e.Add(method, path, h)
		}
	}

	r.app.logger.Debug("route registered",
		zap.String("path", path),
		zap.Strings("methods", canonical),
		zap.String("kind", string(r.kind)),
		zap.Bool("wrapped", wrapper != nil))
}

// GET registers a handler for GET requests.
func (r *Router) GET(path string, h echo.HandlerFunc) {
	r.Handle(path, h, http.MethodGet)
}

// POST registers a handler for POST requests.
func (r *Router) POST(path string, h echo.HandlerFunc) {
	r.Handle(path, h, http.MethodPost)
}

// PUT registers a handler for PUT requests.
func (r *Router) PUT(path string, h echo.HandlerFunc) {
	r.Handle(path, h, http.MethodPut)
}

// PATCH registers a handler for PATCH requests.
func (r *Router) PATCH(path string, h echo.HandlerFunc) {
	r.Handle(path, h, http.MethodPatch)
}

// DELETE registers a handler for DELETE requests.
func (r *Router) DELETE(path string, h echo.HandlerFunc) {
	r.Handle(path, h, http.MethodDelete)
}
