package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beginnings-dev/beginnings/config"
	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/observability"
)

// scriptedExt is a configurable extension for app-level tests.
type scriptedExt struct {
	name     string
	class    extension.Class
	applies  func(extension.Route) bool
	mw       func(extension.Route) (echo.MiddlewareFunc, error)
	started  int
	stopped  int
	startErr error
}

func (s *scriptedExt) Name() string                               { return s.name }
func (s *scriptedExt) Class() extension.Class                     { return s.class }
func (s *scriptedExt) ValidateConfig(cfg map[string]any) []string { return nil }

func (s *scriptedExt) Applies(route extension.Route) bool {
	if s.applies != nil {
		return s.applies(route)
	}
	return true
}

func (s *scriptedExt) Middleware(route extension.Route) (echo.MiddlewareFunc, error) {
	if s.mw != nil {
		return s.mw(route)
	}
	return nil, nil
}

func (s *scriptedExt) Startup(ctx context.Context) error {
	s.started++
	return s.startErr
}

func (s *scriptedExt) Shutdown(ctx context.Context) error {
	s.stopped++
	return nil
}

func factoriesFor(exts ...*scriptedExt) map[string]extension.Factory {
	factories := make(map[string]extension.Factory, len(exts))
	for _, e := range exts {
		ext := e
		factories[ext.name] = func(cfg map[string]any) (extension.Extension, error) {
			return ext, nil
		}
	}
	return factories
}

func extensionEntries(names ...string) []config.ExtensionConfig {
	out := make([]config.ExtensionConfig, 0, len(names))
	for _, n := range names {
		out = append(out, config.ExtensionConfig{Name: n})
	}
	return out
}

func TestNewAppDefaults(t *testing.T) {
	a, err := NewApp()
	require.NoError(t, err)

	assert.NotNil(t, a.Echo())
	assert.NotNil(t, a.Resolver())
	assert.NotNil(t, a.Registry())
	assert.Equal(t, extension.KindHTML, a.HTML().Kind())
	assert.Equal(t, extension.KindAPI, a.API().Kind())
}

func TestNewAppOptionErrors(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"nil logger", WithLogger(nil)},
		{"nil metrics", WithMetrics(nil)},
		{"nil factories", WithFactories(nil)},
		{"bad timeout", WithShutdownTimeout(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewApp(tc.opt)
			assert.Error(t, err)
		})
	}
}

func TestNewAppLoadsConfiguredExtensions(t *testing.T) {
	alpha := &scriptedExt{name: "alpha"}
	beta := &scriptedExt{name: "beta"}

	cfg := config.DefaultConfig()
	cfg.Extensions = extensionEntries("alpha", "missing", "beta")

	a, err := NewApp(
		WithConfig(cfg),
		WithFactories(factoriesFor(alpha, beta)),
	)
	require.NoError(t, err)

	// "missing" has no factory; the failure is logged, the rest still load
	assert.Equal(t, 2, a.Registry().Len())
	_, err = a.Registry().Get("alpha")
	assert.NoError(t, err)
	_, err = a.Registry().Get("missing")
	assert.Error(t, err)
}

func TestShutdownRunsStagesAndHooks(t *testing.T) {
	ext := &scriptedExt{name: "stateful"}

	cfg := config.DefaultConfig()
	cfg.Extensions = extensionEntries("stateful")

	a, err := NewApp(WithConfig(cfg), WithFactories(factoriesFor(ext)))
	require.NoError(t, err)

	var order []string
	a.OnShutdown(func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	a.OnShutdown(func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, a.Shutdown(context.Background()))

	assert.Equal(t, 1, ext.stopped)
	// reverse registration order
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownCollectsHookFailures(t *testing.T) {
	a, err := NewApp(WithShutdownTimeout(time.Second))
	require.NoError(t, err)

	hookErr := errors.New("cleanup failed")
	var ran bool
	a.OnShutdown(func(ctx context.Context) error {
		ran = true
		return nil
	})
	a.OnShutdown(func(ctx context.Context) error { return hookErr })

	err = a.Shutdown(context.Background())
	assert.ErrorIs(t, err, hookErr)
	// the failing hook must not stop the remaining ones
	assert.True(t, ran)
}

func TestDevelopmentRoutes(t *testing.T) {
	collector := observability.NewCollector()

	cfg := config.DefaultConfig()
	cfg.App.Dev = true
	cfg.Global = map[string]any{"request_log": true}
	cfg.Routes = map[string]any{
		"/api/*": map[string]any{"rate_limit": 10},
		"/admin": map[string]any{"auth_secret": "hunter2"},
	}

	a, err := NewApp(
		WithConfig(cfg),
		WithMetrics(collector),
		WithFactories(map[string]extension.Factory{}),
	)
	require.NoError(t, err)

	t.Run("routes table", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_routes", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"/api/*"`)
		assert.Contains(t, rec.Body.String(), `"specificity"`)
	})

	t.Run("config is masked", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_config", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "hunter2")
		assert.Contains(t, rec.Body.String(), "********")
	})

	t.Run("metrics snapshot", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"resolutions"`)
	})
}

func TestPrometheusEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = true

	a, err := NewApp(
		WithConfig(cfg),
		WithMetrics(observability.NewPromCollector("test")),
		WithFactories(map[string]extension.Factory{}),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMaskMap(t *testing.T) {
	masked := maskMap(map[string]any{
		"rate_limit": 5,
		"jwt_secret": "s3cret",
		"nested": map[string]any{
			"api_token": "abc",
			"origin":    "https://example.com",
		},
	})

	assert.Equal(t, 5, masked["rate_limit"])
	assert.Equal(t, "********", masked["jwt_secret"])
	nested := masked["nested"].(map[string]any)
	assert.Equal(t, "********", nested["api_token"])
	assert.Equal(t, "https://example.com", nested["origin"])
}
