package routing

import (
	"time"

	"github.com/spf13/cast"
)

// ResolvedConfig is the flattened configuration for a single route after
// global defaults, matching patterns, the exact entry, and method overrides
// have been merged. Values keep whatever types the configuration files
// produced; the accessors coerce on read. Treat resolved configurations as
// read-only: they are shared between cached resolutions.
type ResolvedConfig map[string]any

// Has reports whether key is present.
func (c ResolvedConfig) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Get returns the raw value for key, or nil when absent.
func (c ResolvedConfig) Get(key string) any {
	return c[key]
}

// String returns the value for key coerced to a string.
func (c ResolvedConfig) String(key string) string {
	return cast.ToString(c[key])
}

// StringOr returns the coerced string, or def when the key is absent or the
// value cannot be coerced.
func (c ResolvedConfig) StringOr(key, def string) string {
	v, ok := c[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Int returns the value for key coerced to an int.
func (c ResolvedConfig) Int(key string) int {
	return cast.ToInt(c[key])
}

// IntOr returns the coerced int, or def when the key is absent or the value
// cannot be coerced.
func (c ResolvedConfig) IntOr(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Float returns the value for key coerced to a float64.
func (c ResolvedConfig) Float(key string) float64 {
	return cast.ToFloat64(c[key])
}

// Bool returns the value for key coerced to a bool.
func (c ResolvedConfig) Bool(key string) bool {
	return cast.ToBool(c[key])
}

// BoolOr returns the coerced bool, or def when the key is absent or the
// value cannot be coerced.
func (c ResolvedConfig) BoolOr(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the value for key coerced to a time.Duration. Plain
// numbers are read as seconds, strings go through time.ParseDuration.
func (c ResolvedConfig) Duration(key string) time.Duration {
	v, ok := c[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n * float64(time.Second))
	}
	return cast.ToDuration(v)
}

// StringSlice returns the value for key coerced to a string slice.
func (c ResolvedConfig) StringSlice(key string) []string {
	return cast.ToStringSlice(c[key])
}

// Section returns the nested mapping under key, or nil when the value is
// absent or not a mapping. Object-form keys such as "rate_limit: {rate: 10}"
// are read through sections.
func (c ResolvedConfig) Section(key string) ResolvedConfig {
	v, ok := c[key]
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return ResolvedConfig(m)
}

// Keys returns the present keys in unspecified order.
func (c ResolvedConfig) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}
