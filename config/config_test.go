package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "beginnings", cfg.App.Name)
	assert.False(t, cfg.App.Dev)
	assert.Equal(t, 10*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Encoding)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("bad log level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logger.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad metrics path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Path = "metrics"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing server address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Address = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate extension", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Extensions = []ExtensionConfig{
			{Name: "auth"},
			{Name: "auth"},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("unnamed extension", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Extensions = []ExtensionConfig{{Name: "  "}}
		assert.Error(t, cfg.Validate())
	})
}

func TestRoutingProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global = map[string]any{"timeout": 30}
	cfg.Routes = map[string]any{
		"/api/*": map[string]any{"auth": true},
	}

	rc := cfg.Routing()
	assert.Equal(t, cfg.Global, rc.Global)
	assert.Equal(t, cfg.Routes, rc.Routes)
}

func TestBuildLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger, err := DefaultConfig().Logger.BuildLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Sync()
	})

	t.Run("console", func(t *testing.T) {
		cfg := DefaultConfig().Logger
		cfg.Level = "debug"
		cfg.Encoding = "console"
		logger, err := cfg.BuildLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("bad level", func(t *testing.T) {
		cfg := DefaultConfig().Logger
		cfg.Level = "shouty"
		_, err := cfg.BuildLogger()
		assert.Error(t, err)
	})
}
