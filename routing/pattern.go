package routing

import (
	"regexp"
	"sort"
	"strings"
)

// NormalizePath guarantees a leading slash and strips the trailing slash
// except on the root path. Pattern keys and lookup paths go through the same
// normalization, so "/admin/" and "/admin" name the same route.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// CanonicalMethods upper-cases, de-duplicates, and sorts HTTP method names,
// dropping empty entries. Resolution results are therefore independent of
// the order methods are passed in.
func CanonicalMethods(methods []string) []string {
	if len(methods) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		u := strings.ToUpper(strings.TrimSpace(m))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Pattern is a compiled route pattern. A segment of "*" matches exactly one
// non-empty path segment, "**" matches zero or more full segments, and any
// other segment matches literally. Patterns without wildcard segments are
// exact and carry no matcher. Compiled patterns are immutable.
type Pattern struct {
	raw         string
	normalized  string
	specificity int
	re          *regexp.Regexp // nil for exact patterns
}

// CompilePattern compiles a route pattern key.
func CompilePattern(raw string) (*Pattern, error) {
	normalized := NormalizePath(raw)
	p := &Pattern{
		raw:         raw,
		normalized:  normalized,
		specificity: specificityOf(normalized),
	}
	if !hasWildcard(normalized) {
		return p, nil
	}
	re, err := compileMatcher(normalized)
	if err != nil {
		return nil, err
	}
	p.re = re
	return p, nil
}

// Raw returns the pattern string as written in the configuration.
func (p *Pattern) Raw() string { return p.raw }

// Specificity returns the precedence score. More literal text and more
// segments raise it, wildcards lower it, and wildcard-free patterns get a
// flat bonus so they always outrank single wildcards of similar length.
func (p *Pattern) Specificity() int { return p.specificity }

// IsExact reports whether the pattern contains no wildcard segments.
func (p *Pattern) IsExact() bool { return p.re == nil }

// Matches reports whether path matches the pattern.
func (p *Pattern) Matches(path string) bool {
	return p.matchNormalized(NormalizePath(path))
}

// matchNormalized matches an already normalized path. The root path is
// rewritten to the empty string so a multi wildcard can match it with zero
// segments.
func (p *Pattern) matchNormalized(np string) bool {
	if p.re == nil {
		return np == p.normalized
	}
	if np == "/" {
		np = ""
	}
	return p.re.MatchString(np)
}

func segmentsOf(normalized string) []string {
	if normalized == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(normalized, "/"), "/")
}

func hasWildcard(normalized string) bool {
	for _, seg := range segmentsOf(normalized) {
		if seg == "*" || seg == "**" {
			return true
		}
	}
	return false
}

// specificityOf scores a normalized pattern: ten points per literal
// character, five per segment, minus two per single wildcard, minus five per
// multi wildcard, plus fifty when no wildcard is present.
func specificityOf(normalized string) int {
	literal, single, multi := 0, 0, 0
	segs := segmentsOf(normalized)
	for _, seg := range segs {
		switch seg {
		case "*":
			single++
		case "**":
			multi++
		default:
			literal += len(seg)
		}
	}
	score := 10*literal + 5*len(segs) - 2*single - 5*multi
	if single == 0 && multi == 0 {
		score += 50
	}
	return score
}

func compileMatcher(normalized string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, seg := range segmentsOf(normalized) {
		switch seg {
		case "**":
			b.WriteString(`(?:/[^/]+)*`)
		case "*":
			b.WriteString(`/[^/]+`)
		default:
			b.WriteString("/")
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
