package app

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/observability"
	"github.com/beginnings-dev/beginnings/routing"
)

// registerDevelopmentRoutes mounts the introspection endpoints used while
// developing against a configuration: the active route table, the masked
// configuration, and the in-memory metrics snapshot.
func (app *App) registerDevelopmentRoutes() {
	h := &devHandler{app: app}

	app.e.GET("/_routes", h.Routes)
	app.e.GET("/_config", h.Config)
	app.e.GET("/_metrics", h.Metrics)

	app.logger.Info("development routes registered",
		zap.Strings("routes", []string{"/_routes", "/_config", "/_metrics"}))
}

type devHandler struct {
	app *App
}

// Routes returns the active route table with specificity scores, plus the
// resolver counters and the loaded extensions.
func (h *devHandler) Routes(c echo.Context) error {
	extensions := make([]map[string]string, 0, h.app.registry.Len())
	for _, ext := range h.app.registry.List() {
		extensions = append(extensions, map[string]string{
			"name":  ext.Name(),
			"class": ext.Class().String(),
		})
	}

	diagnostics := h.app.resolver.Diagnostics()
	return c.JSON(http.StatusOK, map[string]any{
		"total_routes": len(diagnostics),
		"routes":       diagnostics,
		"stats":        h.app.resolver.Stats(),
		"extensions":   extensions,
	})
}

// Config returns the configuration with secret-bearing values masked.
func (h *devHandler) Config(c echo.Context) error {
	cfg := h.app.cfg

	extensions := make([]map[string]any, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions = append(extensions, map[string]any{
			"name":   ext.Name,
			"config": maskMap(ext.Config),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"app": map[string]any{
			"name":             cfg.App.Name,
			"environment":      cfg.App.Environment,
			"dev":              cfg.App.Dev,
			"shutdown_timeout": cfg.App.ShutdownTimeout.String(),
		},
		"server": map[string]any{
			"address":       cfg.Server.Address,
			"read_timeout":  cfg.Server.ReadTimeout.String(),
			"write_timeout": cfg.Server.WriteTimeout.String(),
			"idle_timeout":  cfg.Server.IdleTimeout.String(),
		},
		"logger":     map[string]any{"level": cfg.Logger.Level, "encoding": cfg.Logger.Encoding},
		"metrics":    map[string]any{"enabled": cfg.Metrics.Enabled, "path": cfg.Metrics.Path},
		"extensions": extensions,
		"global":     maskMap(cfg.Global),
		"routes":     maskMap(cfg.Routes),
	})
}

// Metrics returns the in-memory collector snapshot when one is installed.
func (h *devHandler) Metrics(c echo.Context) error {
	collector, ok := h.app.metrics.(*observability.Collector)
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{
			"message": "no in-memory collector installed",
			"stats":   h.app.resolver.Stats(),
		})
	}
	return c.JSON(http.StatusOK, collector.Snapshot())
}

// sensitiveKeyMarkers flag configuration keys whose values never leave the
// process, even on the development endpoint.
var sensitiveKeyMarkers = []string{"secret", "password", "token", "credential", "dsn"}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// maskMap copies a configuration mapping with sensitive values replaced.
func maskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKey(k) {
			out[k] = "********"
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = maskMap(nested)
		case routing.ResolvedConfig:
			out[k] = maskMap(nested)
		default:
			out[k] = v
		}
	}
	return out
}
