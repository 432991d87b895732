// Package csrf provides the cross-site request forgery extension using the
// double-submit cookie pattern with HMAC-signed tokens. HTML routes are
// protected by default; any route can opt in or out with a csrf key.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/internal/validate"
)

// Name is the registry identifier for this extension.
const Name = "csrf"

// TokenKey is the echo context key the current token is stored under, so
// templates can embed it in forms.
const TokenKey = "csrf.token"

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Config is the load-time configuration.
type Config struct {
	// Secret keys the token HMAC. It is required.
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	// CookieName carries the token to the client.
	CookieName string `mapstructure:"cookie_name" validate:"required"`
	// HeaderName is where API-style submissions put the token.
	HeaderName string `mapstructure:"header_name" validate:"required"`
	// FieldName is the form field HTML submissions put the token in.
	FieldName string `mapstructure:"field_name" validate:"required"`
	// TokenTTL bounds how long an issued token stays valid.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// CookieSecure marks the cookie Secure. Enable behind HTTPS.
	CookieSecure bool `mapstructure:"cookie_secure"`
}

// DefaultConfig returns the extension defaults. Secret has no default.
func DefaultConfig() *Config {
	return &Config{
		CookieName: "_csrf",
		HeaderName: "X-CSRF-Token",
		FieldName:  "_csrf",
		TokenTTL:   time.Hour,
	}
}

// Extension protects state-changing requests on HTML routes and on any route
// that declares csrf: true.
type Extension struct {
	cfg    *Config
	secret []byte
}

// New creates the extension with defaults overridden by cfg.
func New(cfg map[string]any) (*Extension, error) {
	conf := DefaultConfig()
	if err := extension.DecodeConfig(cfg, conf); err != nil {
		return nil, fmt.Errorf("decode csrf config: %w", err)
	}
	if conf.Secret == "" {
		return nil, fmt.Errorf("csrf requires a secret")
	}
	return &Extension{cfg: conf, secret: []byte(conf.Secret)}, nil
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

// Applies protects HTML routes unless they declare csrf: false. Other routes
// opt in with a csrf key.
func (e *Extension) Applies(route extension.Route) bool {
	if route.Config.Has("csrf") {
		if b, ok := route.Config.Get("csrf").(bool); ok {
			return b
		}
		return true
	}
	return route.Kind == extension.KindHTML
}

// Middleware returns the forgery guard for one route. Safe methods receive a
// token cookie; unsafe methods must echo it back in the header or form field.
func (e *Extension) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if safeMethods[c.Request().Method] {
				token, err := e.ensureCookie(c)
				if err != nil {
					return err
				}
				c.Set(TokenKey, token)
				return next(c)
			}

			cookie, err := c.Cookie(e.cfg.CookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusForbidden, "missing csrf cookie")
			}
			submitted := e.submittedToken(c)
			if submitted == "" {
				return echo.NewHTTPError(http.StatusForbidden, "missing csrf token")
			}
			if !hmac.Equal([]byte(cookie.Value), []byte(submitted)) || !e.verify(submitted) {
				return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
			}

			c.Set(TokenKey, submitted)
			return next(c)
		}
	}, nil
}

// Token returns the current request's token, for embedding in templates.
func Token(c echo.Context) string {
	if token, ok := c.Get(TokenKey).(string); ok {
		return token
	}
	return ""
}

// ensureCookie reuses a valid token cookie or issues a fresh one.
func (e *Extension) ensureCookie(c echo.Context) (string, error) {
	if cookie, err := c.Cookie(e.cfg.CookieName); err == nil && e.verify(cookie.Value) {
		return cookie.Value, nil
	}

	token, err := e.issue()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "csrf token generation failed")
	}
	c.SetCookie(&http.Cookie{
		Name:     e.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(e.cfg.TokenTTL / time.Second),
		Secure:   e.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// submittedToken reads the token from the header, falling back to the form
// field for browser submissions.
func (e *Extension) submittedToken(c echo.Context) string {
	if token := c.Request().Header.Get(e.cfg.HeaderName); token != "" {
		return token
	}
	return c.FormValue(e.cfg.FieldName)
}

// issue builds a token of the form nonce.timestamp.signature.
func (e *Extension) issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	n := hex.EncodeToString(nonce)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return n + "." + ts + "." + e.sign(n, ts), nil
}

// verify checks the token signature and age.
func (e *Extension) verify(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	if !hmac.Equal([]byte(parts[2]), []byte(e.sign(parts[0], parts[1]))) {
		return false
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(issued, 0))
	return age >= 0 && age <= e.cfg.TokenTTL
}

func (e *Extension) sign(nonce, ts string) string {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write([]byte(nonce + "." + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
