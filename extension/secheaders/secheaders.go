// Package secheaders provides the security response header extension. Routes
// opt in with a security_headers key: true applies the extension defaults, a
// mapping overrides individual headers for that route.
package secheaders

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
)

// Name is the registry identifier for this extension.
const Name = "secheaders"

// Config is the load-time configuration. Route entries may override any
// field under their security_headers mapping.
type Config struct {
	// FrameOptions sets X-Frame-Options. Empty omits the header.
	FrameOptions string `mapstructure:"frame_options" validate:"omitempty,oneof=DENY SAMEORIGIN"`
	// ContentTypeNosniff enables X-Content-Type-Options: nosniff.
	ContentTypeNosniff bool `mapstructure:"nosniff"`
	// XSSProtection sets X-XSS-Protection. Empty omits the header.
	XSSProtection string `mapstructure:"xss_protection"`
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds. Zero
	// disables HSTS. The header is only sent on HTTPS responses.
	HSTSMaxAge            int  `mapstructure:"hsts_max_age" validate:"gte=0"`
	HSTSIncludeSubdomains bool `mapstructure:"hsts_include_subdomains"`
	HSTSPreload           bool `mapstructure:"hsts_preload"`
	// ContentSecurityPolicy sets Content-Security-Policy. Empty omits it.
	ContentSecurityPolicy string `mapstructure:"csp"`
	// ReferrerPolicy sets Referrer-Policy. Empty omits the header.
	ReferrerPolicy string `mapstructure:"referrer_policy"`
	// PermissionsPolicy sets Permissions-Policy. Empty omits the header.
	PermissionsPolicy string `mapstructure:"permissions_policy"`
}

// DefaultConfig returns secure defaults.
func DefaultConfig() *Config {
	return &Config{
		FrameOptions:          "DENY",
		ContentTypeNosniff:    true,
		XSSProtection:         "1; mode=block",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

// Extension stamps security headers on responses for routes that declare a
// security_headers key.
type Extension struct {
	cfg *Config
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode secheaders config: %w", err)
	}
	return &Extension{cfg: conf}, nil
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

// Applies accepts routes with a security_headers key unless it is literally
// false.
func (e *Extension) Applies(route extension.Route) bool {
	if !route.Config.Has("security_headers") {
		return false
	}
	if b, ok := route.Config.Get("security_headers").(bool); ok {
		return b
	}
	return true
}

// Middleware returns the header writer for one route. Route mappings
// override the extension defaults field by field.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	conf := *e.cfg
	if sec := route.Config.Section("security_headers"); sec != nil {
		if err := extension.DecodeConfig(sec, &conf); err != nil {
			return nil, fmt.Errorf("security_headers for %s: %w", route.Path, err)
		}
	}

	hsts := hstsValue(&conf)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			if conf.FrameOptions != "" {
				h.Set(echo.HeaderXFrameOptions, conf.FrameOptions)
			}
			if conf.ContentTypeNosniff {
				h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			}
			if conf.XSSProtection != "" {
				h.Set(echo.HeaderXXSSProtection, conf.XSSProtection)
			}
			if hsts != "" && c.Scheme() == "https" {
				h.Set(echo.HeaderStrictTransportSecurity, hsts)
			}
			if conf.ContentSecurityPolicy != "" {
				h.Set(echo.HeaderContentSecurityPolicy, conf.ContentSecurityPolicy)
			}
			if conf.ReferrerPolicy != "" {
				h.Set(echo.HeaderReferrerPolicy, conf.ReferrerPolicy)
			}
			if conf.PermissionsPolicy != "" {
				h.Set("Permissions-Policy", conf.PermissionsPolicy)
			}
			return next(c)
		}
	}, nil
}

// hstsValue prebuilds the Strict-Transport-Security value, or "" when HSTS
// is disabled.
func hstsValue(conf *Config) string {
	if conf.HSTSMaxAge <= 0 {
		return ""
	}
	v := fmt.Sprintf("max-age=%d", conf.HSTSMaxAge)
	if conf.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	if conf.HSTSPreload {
		v += "; preload"
	}
	return v
}
