package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()

	c.RecordResolution(false)
	c.RecordResolution(false)
	c.RecordResolution(true)
	c.RecordReload(4, 2)
	c.RecordSkippedEntry()
	c.RecordChainBuild(3, 2)
	c.RecordExtensionFailure("ratelimit", "factory")
	c.RecordExtensionFailure("ratelimit", "factory")
	c.RecordRequest("GET", "/api/users", 200, 10*time.Millisecond)
	c.RecordRequest("POST", "/api/users", 429, 5*time.Millisecond)

	snap := c.Snapshot()

	assert.Equal(t, int64(3), snap.Resolutions)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(2), snap.CacheMisses)
	assert.Equal(t, int64(1), snap.SkippedEntries)
	assert.Equal(t, int64(1), snap.Reloads)
	assert.Equal(t, 4, snap.CompiledPatterns)
	assert.Equal(t, 2, snap.ExactRoutes)
	assert.Equal(t, int64(1), snap.ChainsBuilt)
	assert.Equal(t, int64(2), snap.SecurityWrappers)
	assert.Equal(t, int64(1), snap.GeneralWrappers)
	assert.Equal(t, int64(2), snap.ExtensionFailures["ratelimit:factory"])
	assert.Equal(t, int64(2), snap.Requests.Total)
	assert.Equal(t, int64(1), snap.Requests.ByStatus[429])
	assert.Equal(t, int64(1), snap.Requests.ByMethod["GET"])
	assert.NotZero(t, snap.Requests.AverageLatency)
}

func TestCollectorSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("GET", "/", 200, time.Millisecond)

	snap := c.Snapshot()
	snap.Requests.ByStatus[200] = 99

	assert.Equal(t, int64(1), c.Snapshot().Requests.ByStatus[200])
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.RecordResolution(j%2 == 0)
				c.RecordRequest("GET", "/x", 200, time.Microsecond)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := c.Snapshot()
	assert.Equal(t, int64(800), snap.Resolutions)
	assert.Equal(t, int64(400), snap.CacheHits)
	assert.Equal(t, int64(800), snap.Requests.Total)
}

func TestNoOpCollector(t *testing.T) {
	var m Metrics = NewNoOpCollector()

	m.RecordResolution(true)
	m.RecordReload(1, 1)
	m.RecordSkippedEntry()
	m.RecordChainBuild(2, 1)
	m.RecordExtensionFailure("auth", "predicate")
	m.RecordRequest("GET", "/", 200, time.Millisecond)
}

func TestPromCollector(t *testing.T) {
	c := NewPromCollector("")

	c.RecordResolution(true)
	c.RecordResolution(false)
	c.RecordReload(3, 1)
	c.RecordSkippedEntry()
	c.RecordChainBuild(2, 1)
	c.RecordExtensionFailure("csrf", "factory")
	c.RecordRequest("GET", "/api/users", 200, 15*time.Millisecond)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["beginnings_resolver_resolutions_total"])
	assert.True(t, names["beginnings_resolver_reloads_total"])
	assert.True(t, names["beginnings_resolver_compiled_patterns"])
	assert.True(t, names["beginnings_chain_builds_total"])
	assert.True(t, names["beginnings_extension_failures_total"])
	assert.True(t, names["beginnings_http_requests_total"])
	assert.True(t, names["beginnings_http_request_duration_seconds"])
}

func TestPromCollectorHandler(t *testing.T) {
	c := NewPromCollector("testns")
	c.RecordRequest("GET", "/", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "testns_http_requests_total")
}

func TestPromCollectorsCoexist(t *testing.T) {
	// Separate registries must not panic on duplicate registration.
	a := NewPromCollector("")
	b := NewPromCollector("")

	a.RecordSkippedEntry()
	b.RecordSkippedEntry()
}
