// Package routing compiles wildcard route patterns and resolves the layered
// configuration for registered routes.
//
// Route configuration has two sections. "global" holds defaults merged into
// every route first. "routes" maps path patterns to configuration entries;
// an entry's reserved "methods" sub-map carries per-method overrides. A
// resolution starts from the global defaults, merges every matching wildcard
// pattern in ascending specificity order, then the exact entry for the path,
// and finally the exact entry's overrides for the requested methods. Merging
// is shallow: a later source replaces whole top-level keys.
package routing

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/observability"
)

// methodsKey is the reserved sub-key carrying per-method overrides.
const methodsKey = "methods"

// Config is the routing slice of the application configuration.
type Config struct {
	// Global holds defaults merged into every resolution first.
	Global map[string]any
	// Routes maps path patterns to configuration entries.
	Routes map[string]any
}

// compiledRoute pairs a wildcard pattern with its configuration entry.
type compiledRoute struct {
	pattern *Pattern
	config  map[string]any // entry minus the methods sub-key
}

// exactRoute is a wildcard-free entry, looked up directly by path.
type exactRoute struct {
	pattern *Pattern
	config  map[string]any
	methods map[string]map[string]any // canonical method name -> override entry
}

// snapshot is one immutable compilation of the route configuration. The
// cache travels with its snapshot, so a reload can never serve entries
// computed from older tables.
type snapshot struct {
	global   map[string]any
	patterns []*compiledRoute // ascending specificity, ties by pattern string
	exact    map[string]*exactRoute
	cache    *sync.Map // cacheKey -> ResolvedConfig
}

// Stats are process-lifetime resolver counters. They survive reloads.
type Stats struct {
	Resolutions    int64 `json:"resolutions"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	SkippedEntries int64 `json:"skipped_entries"`
	Reloads        int64 `json:"reloads"`
}

type counters struct {
	resolutions    atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	skippedEntries atomic.Int64
	reloads        atomic.Int64
}

// Resolver resolves the effective configuration for registered routes.
// Resolutions are lock-free reads against the current snapshot; Reload and
// ClearCache swap complete snapshots atomically, so concurrent readers see
// either the old tables or the new ones, never a mix.
type Resolver struct {
	snap    atomic.Pointer[snapshot]
	logger  *zap.Logger
	metrics observability.Metrics
	stats   counters
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for skipped entries and reload reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collector resolver events are reported to.
func WithMetrics(m observability.Metrics) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewResolver compiles cfg into the first snapshot and returns a ready
// resolver. Malformed route entries are skipped and logged, never fatal.
func NewResolver(cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		logger:  zap.NewNop(),
		metrics: observability.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	snap := r.compile(cfg)
	r.snap.Store(snap)
	r.metrics.RecordReload(len(snap.patterns), len(snap.exact))
	return r
}

// Resolve returns the effective configuration for a route. Results are
// cached per normalized path and canonical method set; repeated calls for
// the same route return the identical map.
func (r *Resolver) Resolve(path string, methods ...string) ResolvedConfig {
	snap := r.snap.Load()
	np := NormalizePath(path)
	canonical := CanonicalMethods(methods)
	key := cacheKey(np, canonical)

	r.stats.resolutions.Add(1)
	if v, ok := snap.cache.Load(key); ok {
		r.stats.cacheHits.Add(1)
		r.metrics.RecordResolution(true)
		return v.(ResolvedConfig)
	}

	r.stats.cacheMisses.Add(1)
	r.metrics.RecordResolution(false)

	resolved := snap.resolve(np, canonical)
	// LoadOrStore keeps one winner under concurrency, preserving pointer
	// identity for every caller.
	actual, _ := snap.cache.LoadOrStore(key, resolved)
	return actual.(ResolvedConfig)
}

// Reload compiles cfg into a fresh snapshot with an empty cache and swaps it
// in atomically. In-flight resolutions finish against the old snapshot.
func (r *Resolver) Reload(cfg Config) {
	snap := r.compile(cfg)
	r.snap.Store(snap)
	r.stats.reloads.Add(1)
	r.metrics.RecordReload(len(snap.patterns), len(snap.exact))
	r.logger.Info("route configuration reloaded",
		zap.Int("patterns", len(snap.patterns)),
		zap.Int("exact_routes", len(snap.exact)))
}

// ClearCache drops cached resolutions without recompiling the route tables.
func (r *Resolver) ClearCache() {
	for {
		old := r.snap.Load()
		next := &snapshot{
			global:   old.global,
			patterns: old.patterns,
			exact:    old.exact,
			cache:    &sync.Map{},
		}
		if r.snap.CompareAndSwap(old, next) {
			return
		}
	}
}

// Stats returns the current counter values.
func (r *Resolver) Stats() Stats {
	return Stats{
		Resolutions:    r.stats.resolutions.Load(),
		CacheHits:      r.stats.cacheHits.Load(),
		CacheMisses:    r.stats.cacheMisses.Load(),
		SkippedEntries: r.stats.skippedEntries.Load(),
		Reloads:        r.stats.reloads.Load(),
	}
}

// RouteDiagnostic describes one entry of the active route table.
type RouteDiagnostic struct {
	Pattern     string   `json:"pattern"`
	Specificity int      `json:"specificity"`
	Exact       bool     `json:"exact"`
	Keys        []string `json:"keys"`
	Methods     []string `json:"methods,omitempty"`
}

// Diagnostics lists the active route table: exact routes first in path
// order, then wildcard patterns from most to least specific.
func (r *Resolver) Diagnostics() []RouteDiagnostic {
	snap := r.snap.Load()
	out := make([]RouteDiagnostic, 0, len(snap.exact)+len(snap.patterns))

	exacts := make([]*exactRoute, 0, len(snap.exact))
	for _, ex := range snap.exact {
		exacts = append(exacts, ex)
	}
	sort.Slice(exacts, func(i, j int) bool {
		return exacts[i].pattern.normalized < exacts[j].pattern.normalized
	})
	for _, ex := range exacts {
		out = append(out, RouteDiagnostic{
			Pattern:     ex.pattern.raw,
			Specificity: ex.pattern.specificity,
			Exact:       true,
			Keys:        sortedKeys(ex.config),
			Methods:     sortedMethodNames(ex.methods),
		})
	}
	for i := len(snap.patterns) - 1; i >= 0; i-- {
		cr := snap.patterns[i]
		out = append(out, RouteDiagnostic{
			Pattern:     cr.pattern.raw,
			Specificity: cr.pattern.specificity,
			Keys:        sortedKeys(cr.config),
		})
	}
	return out
}

// compile builds a snapshot from cfg. Route keys are processed in sorted
// order so duplicate handling does not depend on map iteration order.
func (r *Resolver) compile(cfg Config) *snapshot {
	snap := &snapshot{
		global: make(map[string]any, len(cfg.Global)),
		exact:  make(map[string]*exactRoute),
		cache:  &sync.Map{},
	}
	for k, v := range cfg.Global {
		snap.global[k] = v
	}

	keys := make([]string, 0, len(cfg.Routes))
	for k := range cfg.Routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			r.skip(key, "empty pattern")
			continue
		}
		entry, ok := toEntry(cfg.Routes[key])
		if !ok {
			r.skip(key, "entry is not a mapping")
			continue
		}
		pattern, err := CompilePattern(key)
		if err != nil {
			r.skip(key, err.Error())
			continue
		}

		config, methods := r.splitMethods(key, entry)
		if pattern.IsExact() {
			if prev, dup := snap.exact[pattern.normalized]; dup {
				r.logger.Warn("duplicate exact route, later entry wins",
					zap.String("pattern", key),
					zap.String("previous", prev.pattern.raw))
			}
			snap.exact[pattern.normalized] = &exactRoute{
				pattern: pattern,
				config:  config,
				methods: methods,
			}
			continue
		}
		if len(methods) > 0 {
			// Method overrides only ever apply from the exact entry.
			r.logger.Debug("ignoring method overrides on wildcard pattern",
				zap.String("pattern", key))
		}
		snap.patterns = append(snap.patterns, &compiledRoute{
			pattern: pattern,
			config:  config,
		})
	}

	sort.SliceStable(snap.patterns, func(i, j int) bool {
		a, b := snap.patterns[i].pattern, snap.patterns[j].pattern
		if a.specificity != b.specificity {
			return a.specificity < b.specificity
		}
		return a.normalized < b.normalized
	})
	return snap
}

// splitMethods separates an entry's top-level configuration from its method
// override map. Malformed overrides are skipped per method.
func (r *Resolver) splitMethods(key string, entry map[string]any) (map[string]any, map[string]map[string]any) {
	config := make(map[string]any, len(entry))
	for k, v := range entry {
		if k == methodsKey {
			continue
		}
		config[k] = v
	}

	raw, present := entry[methodsKey]
	if !present {
		return config, nil
	}
	overrides, ok := toEntry(raw)
	if !ok {
		r.skip(key, "methods is not a mapping")
		return config, nil
	}
	methods := make(map[string]map[string]any, len(overrides))
	for m, v := range overrides {
		override, ok := toEntry(v)
		if !ok {
			r.skip(key, "method override for "+m+" is not a mapping")
			continue
		}
		methods[strings.ToUpper(m)] = override
	}
	return config, methods
}

func (r *Resolver) skip(key, reason string) {
	r.stats.skippedEntries.Add(1)
	r.metrics.RecordSkippedEntry()
	r.logger.Warn("skipping malformed route entry",
		zap.String("pattern", key),
		zap.String("reason", reason))
}

// resolve computes the merged configuration for a normalized path and
// canonical method set against this snapshot.
func (s *snapshot) resolve(path string, methods []string) ResolvedConfig {
	out := make(ResolvedConfig, len(s.global)+8)
	for k, v := range s.global {
		out[k] = v
	}
	for _, cr := range s.patterns {
		if cr.pattern.matchNormalized(path) {
			merge(out, cr.config)
		}
	}
	if ex, ok := s.exact[path]; ok {
		merge(out, ex.config)
		for _, m := range methods {
			if override, ok := ex.methods[m]; ok {
				merge(out, override)
			}
		}
	}
	return out
}

func merge(dst ResolvedConfig, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func cacheKey(path string, methods []string) string {
	if len(methods) == 0 {
		return path
	}
	return path + "\x00" + strings.Join(methods, ",")
}

// toEntry accepts the mapping shapes YAML decoding produces. Entries with
// non-string keys or non-mapping values are rejected.
func toEntry(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case ResolvedConfig:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedMethodNames(m map[string]map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
