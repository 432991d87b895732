package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/observability"
)

func TestFactories(t *testing.T) {
	table := Factories(zap.NewNop(), observability.NewNoOpCollector())

	for _, name := range []string{"auth", "cors", "csrf", "ratelimit", "requestlog", "secheaders"} {
		assert.Contains(t, table, name)
	}
}

func TestFactoriesLoadIntoRegistry(t *testing.T) {
	table := Factories(zap.NewNop(), observability.NewNoOpCollector())
	registry := extension.NewRegistry(table)

	require.NoError(t, registry.Load("requestlog", nil))
	require.NoError(t, registry.Load("ratelimit", map[string]any{"rate": 50}))
	require.NoError(t, registry.Load("secheaders", nil))
	require.NoError(t, registry.Load("cors", nil))
	assert.Equal(t, 4, registry.Len())

	// auth refuses to load without a secret
	err := registry.Load("auth", nil)
	assert.Error(t, err)
}
