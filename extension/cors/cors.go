// Package cors provides the cross-origin resource sharing extension. Routes
// opt in with a cors key: true applies the extension defaults, a mapping
// overrides origins, methods, and headers for that route.
package cors

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
)

// Name is the registry identifier for this extension.
const Name = "cors"

// Config is the load-time configuration. Route entries may override any
// field under their cors mapping.
type Config struct {
	// Origins lists allowed origins. "*" allows any.
	Origins []string `mapstructure:"origins"`
	// Methods lists allowed methods for preflight responses.
	Methods []string `mapstructure:"methods"`
	// Headers lists allowed request headers. "*" reflects the preflight's
	// requested headers.
	Headers []string `mapstructure:"headers"`
	// Expose lists response headers exposed to browser scripts.
	Expose []string `mapstructure:"expose"`
	// Credentials permits cookies and authorization headers.
	Credentials bool `mapstructure:"credentials"`
	// MaxAge is how long browsers may cache preflight results, in seconds.
	MaxAge int `mapstructure:"max_age" validate:"gte=0"`
}

// DefaultConfig returns the extension defaults.
func DefaultConfig() *Config {
	return &Config{
		Origins: []string{"*"},
		Methods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
		},
		Headers: []string{"*"},
	}
}

// Extension answers preflight requests and stamps CORS headers on routes
// that declare a cors key.
type Extension struct {
	cfg *Config
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode cors config: %w", err)
	}
	return &Extension{cfg: conf}, nil
}

// Factory adapts New to the registry factory signature.
func Factory(cfg map[string]any) (extension.Extension, error) {
	return New(cfg)
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

// Applies accepts routes with a cors key unless it is literally false.
func (e *Extension) Applies(route extension.Route) bool {
	if !route.Config.Has("cors") {
		return false
	}
	if b, ok := route.Config.Get("cors").(bool); ok {
		return b
	}
	return true
}

// Middleware returns the CORS handler for one route. Route mappings override
// the extension defaults field by field.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	conf := *e.cfg
	if sec := route.Config.Section("cors"); sec != nil {
		if err := extension.DecodeConfig(sec, &conf); err != nil {
			return nil, fmt.Errorf("cors for %s: %w", route.Path, err)
		}
	}
	if len(conf.Origins) == 0 {
		conf.Origins = []string{"*"}
	}
	if len(conf.Methods) == 0 {
		conf.Methods = DefaultConfig().Methods
	}
	allowMethods := strings.Join(conf.Methods, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()

			origin := req.Header.Get(echo.HeaderOrigin)
			allowOrigin := ""
			for _, o := range conf.Origins {
				if o == "*" || o == origin {
					allowOrigin = o
					break
				}
			}

			if req.Method != http.MethodOptions {
				if allowOrigin != "" {
					h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
				}
				if conf.Credentials {
					h.Set(echo.HeaderAccessControlAllowCredentials, "true")
				}
				if len(conf.Expose) > 0 {
					h.Set(echo.HeaderAccessControlExposeHeaders, strings.Join(conf.Expose, ", "))
				}
				return next(c)
			}

			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestMethod)
			h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestHeaders)

			if allowOrigin == "" {
				return c.NoContent(http.StatusNoContent)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			if conf.Credentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}
			if len(conf.Headers) > 0 {
				allowHeaders := strings.Join(conf.Headers, ", ")
				if conf.Headers[0] == "*" {
					if requested := req.Header.Get(echo.HeaderAccessControlRequestHeaders); requested != "" {
						allowHeaders = requested
					}
				}
				h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			}
			if conf.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(conf.MaxAge))
			}
			return c.NoContent(http.StatusNoContent)
		}
	}, nil
}
