package secheaders

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/routing"
)

func testRoute(cfg map[string]any) extension.Route {
	return extension.Route{
		Path:    "/dashboard",
		Methods: []string{http.MethodGet},
		Kind:    extension.KindHTML,
		Config:  routing.ResolvedConfig(cfg),
	}
}

// serve runs the wrapped handler once and returns the recorded response.
func serve(t *testing.T, mw echo.MiddlewareFunc, https bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if https {
		req.Header.Set(echo.HeaderXForwardedProto, "https")
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec
}

func TestDefaults(t *testing.T) {
	ext, err := New(nil)
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{"security_headers": true}))
	require.NoError(t, err)

	rec := serve(t, mw, false)
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "1; mode=block", rec.Header().Get(echo.HeaderXXSSProtection))
	assert.Equal(t, "default-src 'self'", rec.Header().Get(echo.HeaderContentSecurityPolicy))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get(echo.HeaderReferrerPolicy))
}

func TestHSTSOnlyOverHTTPS(t *testing.T) {
	ext, err := New(nil)
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{"security_headers": true}))
	require.NoError(t, err)

	plain := serve(t, mw, false)
	assert.Empty(t, plain.Header().Get(echo.HeaderStrictTransportSecurity))

	tls := serve(t, mw, true)
	assert.Equal(t, "max-age=31536000; includeSubDomains",
		tls.Header().Get(echo.HeaderStrictTransportSecurity))
}

func TestHSTSDisabled(t *testing.T) {
	ext, err := New(map[string]any{"hsts_max_age": 0})
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{"security_headers": true}))
	require.NoError(t, err)

	rec := serve(t, mw, true)
	assert.Empty(t, rec.Header().Get(echo.HeaderStrictTransportSecurity))
}

func TestRouteOverrides(t *testing.T) {
	ext, err := New(nil)
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{
		"security_headers": map[string]any{
			"frame_options": "SAMEORIGIN",
			"csp":           "default-src 'self'; img-src *",
		},
	}))
	require.NoError(t, err)

	rec := serve(t, mw, false)
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Equal(t, "default-src 'self'; img-src *",
		rec.Header().Get(echo.HeaderContentSecurityPolicy))
	// untouched fields keep their defaults
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
}

func TestEmptyValuesOmitHeaders(t *testing.T) {
	ext, err := New(map[string]any{
		"frame_options":   "",
		"xss_protection":  "",
		"csp":             "",
		"referrer_policy": "",
		"nosniff":         false,
	})
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{"security_headers": true}))
	require.NoError(t, err)

	rec := serve(t, mw, false)
	assert.Empty(t, rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Empty(t, rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Empty(t, rec.Header().Get(echo.HeaderXXSSProtection))
	assert.Empty(t, rec.Header().Get(echo.HeaderContentSecurityPolicy))
	assert.Empty(t, rec.Header().Get(echo.HeaderReferrerPolicy))
}

func TestApplies(t *testing.T) {
	ext, err := New(nil)
	require.NoError(t, err)

	assert.False(t, ext.Applies(testRoute(map[string]any{})))
	assert.False(t, ext.Applies(testRoute(map[string]any{"security_headers": false})))
	assert.True(t, ext.Applies(testRoute(map[string]any{"security_headers": true})))
	assert.True(t, ext.Applies(testRoute(map[string]any{
		"security_headers": map[string]any{"frame_options": "SAMEORIGIN"},
	})))
}

func TestValidateConfig(t *testing.T) {
	ext, err := New(nil)
	require.NoError(t, err)

	assert.Empty(t, ext.ValidateConfig(map[string]any{"frame_options": "SAMEORIGIN"}))
	assert.NotEmpty(t, ext.ValidateConfig(map[string]any{"frame_options": "ALLOWALL"}))
	assert.NotEmpty(t, ext.ValidateConfig(map[string]any{"hsts_max_age": -1}))

	assert.Equal(t, extension.ClassSecurity, ext.Class())
	assert.Equal(t, Name, ext.Name())
}
