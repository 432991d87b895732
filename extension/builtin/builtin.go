// Package builtin assembles the factory table for the extensions that ship
// with the framework.
package builtin

import (
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/extension/auth"
	"github.com/beginnings-dev/beginnings/extension/cors"
	"github.com/beginnings-dev/beginnings/extension/csrf"
	"github.com/beginnings-dev/beginnings/extension/ratelimit"
	"github.com/beginnings-dev/beginnings/extension/requestlog"
	"github.com/beginnings-dev/beginnings/extension/secheaders"
	"github.com/beginnings-dev/beginnings/observability"
)

// Factories returns the built-in factory table. The logger and metrics sink
// are shared with extensions that report per-request events.
func Factories(logger *zap.Logger, m observability.Metrics) map[string]extension.Factory {
	return map[string]extension.Factory{
		auth.Name:       auth.Factory,
		cors.Name:       cors.Factory,
		csrf.Name:       csrf.Factory,
		ratelimit.Name:  ratelimit.Factory,
		requestlog.Name: requestlog.Factory(logger, m),
		secheaders.Name: secheaders.Factory,
	}
}
