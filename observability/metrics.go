// Package observability provides the metrics surface shared by the route
// configuration resolver, the middleware chain builder, and the request
// logging extension. Collectors are injected through construction; the
// framework keeps no global metric state.
package observability

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics receives operational events from the framework.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// Resolver events
	RecordResolution(cacheHit bool)
	RecordReload(patterns, exact int)
	RecordSkippedEntry()

	// Chain builder events
	RecordChainBuild(total, security int)
	RecordExtensionFailure(extension, stage string)

	// Request events
	RecordRequest(method, path string, status int, duration time.Duration)
}

// NoOpCollector is a no-op implementation of Metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that discards every event.
func NewNoOpCollector() *NoOpCollector { return &NoOpCollector{} }

func (n *NoOpCollector) RecordResolution(cacheHit bool)                 {}
func (n *NoOpCollector) RecordReload(patterns, exact int)               {}
func (n *NoOpCollector) RecordSkippedEntry()                            {}
func (n *NoOpCollector) RecordChainBuild(total, security int)           {}
func (n *NoOpCollector) RecordExtensionFailure(extension, stage string) {}
func (n *NoOpCollector) RecordRequest(method, path string, status int, duration time.Duration) {
}

// Collector is a lightweight in-memory Metrics implementation that keeps
// aggregated counters without unbounded memory growth. It backs the
// /_metrics development endpoint and the resolver tests.
type Collector struct {
	resolutions    atomic.Int64
	cacheHits      atomic.Int64
	skippedEntries atomic.Int64
	reloads        atomic.Int64
	chainsBuilt    atomic.Int64

	mu                sync.RWMutex
	compiledPatterns  int
	exactRoutes       int
	securityWrappers  int64
	generalWrappers   int64
	extensionFailures map[string]int64
	requestTotal      int64
	requestsByStatus  map[int]int64
	requestsByMethod  map[string]int64
	averageLatency    time.Duration
	lastUpdate        time.Time
}

// Snapshot is a point-in-time copy of the collected counters.
type Snapshot struct {
	Resolutions       int64            `json:"resolutions"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	SkippedEntries    int64            `json:"skipped_entries"`
	Reloads           int64            `json:"reloads"`
	CompiledPatterns  int              `json:"compiled_patterns"`
	ExactRoutes       int              `json:"exact_routes"`
	ChainsBuilt       int64            `json:"chains_built"`
	SecurityWrappers  int64            `json:"security_wrappers"`
	GeneralWrappers   int64            `json:"general_wrappers"`
	ExtensionFailures map[string]int64 `json:"extension_failures,omitempty"`
	Requests          RequestStats     `json:"requests"`
}

// RequestStats holds aggregated request statistics.
type RequestStats struct {
	Total          int64            `json:"total"`
	ByStatus       map[int]int64    `json:"by_status"`
	ByMethod       map[string]int64 `json:"by_method"`
	AverageLatency time.Duration    `json:"average_latency"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// NewCollector creates a new in-memory metrics collector.
func NewCollector() *Collector {
	return &Collector{
		extensionFailures: make(map[string]int64),
		requestsByStatus:  make(map[int]int64),
		requestsByMethod:  make(map[string]int64),
	}
}

func (c *Collector) RecordResolution(cacheHit bool) {
	c.resolutions.Add(1)
	if cacheHit {
		c.cacheHits.Add(1)
	}
}

func (c *Collector) RecordReload(patterns, exact int) {
	c.reloads.Add(1)

	c.mu.Lock()
	c.compiledPatterns = patterns
	c.exactRoutes = exact
	c.mu.Unlock()
}

func (c *Collector) RecordSkippedEntry() {
	c.skippedEntries.Add(1)
}

func (c *Collector) RecordChainBuild(total, security int) {
	c.chainsBuilt.Add(1)

	c.mu.Lock()
	c.securityWrappers += int64(security)
	c.generalWrappers += int64(total - security)
	c.mu.Unlock()
}

func (c *Collector) RecordExtensionFailure(extension, stage string) {
	key := fmt.Sprintf("%s:%s", extension, stage)

	c.mu.Lock()
	c.extensionFailures[key]++
	c.mu.Unlock()
}

func (c *Collector) RecordRequest(method, path string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestTotal++
	c.requestsByStatus[status]++
	c.requestsByMethod[method]++

	// Rolling average over roughly the last 100 requests
	if c.averageLatency == 0 {
		c.averageLatency = duration
	} else {
		c.averageLatency = (c.averageLatency*99 + duration) / 100
	}
	c.lastUpdate = time.Now()
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	resolutions := c.resolutions.Load()
	hits := c.cacheHits.Load()

	c.mu.RLock()
	defer c.mu.RUnlock()

	failures := make(map[string]int64, len(c.extensionFailures))
	for k, v := range c.extensionFailures {
		failures[k] = v
	}
	byStatus := make(map[int]int64, len(c.requestsByStatus))
	for k, v := range c.requestsByStatus {
		byStatus[k] = v
	}
	byMethod := make(map[string]int64, len(c.requestsByMethod))
	for k, v := range c.requestsByMethod {
		byMethod[k] = v
	}

	return Snapshot{
		Resolutions:       resolutions,
		CacheHits:         hits,
		CacheMisses:       resolutions - hits,
		SkippedEntries:    c.skippedEntries.Load(),
		Reloads:           c.reloads.Load(),
		CompiledPatterns:  c.compiledPatterns,
		ExactRoutes:       c.exactRoutes,
		ChainsBuilt:       c.chainsBuilt.Load(),
		SecurityWrappers:  c.securityWrappers,
		GeneralWrappers:   c.generalWrappers,
		ExtensionFailures: failures,
		Requests: RequestStats{
			Total:          c.requestTotal,
			ByStatus:       byStatus,
			ByMethod:       byMethod,
			AverageLatency: c.averageLatency,
			LastUpdated:    c.lastUpdate,
		},
	}
}
