// Package auth provides the bearer token authentication extension. Routes
// opt in with an auth key: true demands a valid token, a mapping can also
// restrict the route to given roles.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
)

// Name is the registry identifier for this extension.
const Name = "auth"

// ClaimsKey is the echo context key the validated claims are stored under.
const ClaimsKey = "auth.claims"

// Config is the load-time configuration.
type Config struct {
	// Secret signs and verifies tokens. It is required and never read from
	// route configuration.
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	// Issuer is stamped into issued tokens.
	Issuer string `mapstructure:"issuer"`
	// TTL bounds the lifetime of issued tokens.
	TTL time.Duration `mapstructure:"ttl"`
}

// DefaultConfig returns the extension defaults. Secret has no default.
func DefaultConfig() *Config {
	return &Config{
		Issuer: "beginnings",
		TTL:    time.Hour,
	}
}

// Extension guards routes that declare an auth key.
type Extension struct {
	cfg     *Config
	service *Service
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode auth config: %w", err)
	}
	if conf.Secret == "" {
		return nil, fmt.Errorf("auth requires a secret")
	}
	return &Extension{
		cfg:     conf,
		service: NewService(conf.Secret, conf.TTL, conf.Issuer),
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

// Applies accepts routes with an auth key unless it is literally false, or a
// mapping with required: false.
func (e *Extension) Applies(route extension.Route) bool {
	if !route.Config.Has("auth") {
		return false
	}
	if b, ok := route.Config.Get("auth").(bool); ok {
		return b
	}
	if sec := route.Config.Section("auth"); sec != nil {
		return sec.BoolOr("required", true)
	}
	return true
}

// Middleware returns the bearer token guard for one route.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	var roles []string
	if sec := route.Config.Section("auth"); sec != nil {
		roles = sec.StringSlice("roles")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			claims, err := e.service.Validate(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			if len(roles) > 0 && !hasAnyRole(claims, roles) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}, nil
}

// Service exposes the token service, for issuing tokens in handlers.
func (e *Extension) Service() *Service { return e.service }

func hasAnyRole(claims *Claims, roles []string) bool {
	for _, role := range roles {
		if claims.HasRole(role) {
			return true
		}
	}
	return false
}

// ClaimsFrom retrieves the validated claims from an echo context. It returns
// nil when the route was not guarded.
func ClaimsFrom(c echo.Context) *Claims {
	if claims, ok := c.Get(ClaimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

// UserID retrieves the authenticated user id, or "".
func UserID(c echo.Context) string {
	if claims := ClaimsFrom(c); claims != nil {
		return claims.UserID
	}
	return ""
}
