package keyword

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

const globMeta = "*?[{"

type categoryGlob struct {
	category string
	pattern  glob.Glob
}

// Filter decides whether a normalized keyword is business relevant using the
// exclusion rule tables.
type Filter struct {
	enabled         bool
	caseInsensitive bool
	minLength       int
	maxLength       int
	exact           map[string]string
	globs           []categoryGlob
}

// NewFilter compiles the exclusion categories into a Filter.
func NewFilter(cfg rules.Exclusions) (*Filter, error) {
	f := &Filter{
		enabled:         cfg.Enabled,
		caseInsensitive: cfg.CaseInsensitive,
		minLength:       cfg.MinLength,
		maxLength:       cfg.MaxLength,
		exact:           make(map[string]string),
	}
	for _, category := range cfg.CategoryNames() {
		for _, raw := range cfg.Categories[category] {
			pattern := strings.TrimSpace(raw)
			if f.caseInsensitive {
				pattern = strings.ToLower(pattern)
			}
			if pattern == "" {
				continue
			}
			if !strings.ContainsAny(pattern, globMeta) {
				if f.caseInsensitive {
					pattern = Normalize(pattern)
				}
				if _, seen := f.exact[pattern]; !seen {
					f.exact[pattern] = category
				}
				continue
			}
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", category, raw, err)
			}
			f.globs = append(f.globs, categoryGlob{category: category, pattern: g})
		}
	}
	return f, nil
}

// Enabled reports whether filtering is switched on.
func (f *Filter) Enabled() bool {
	return f.enabled
}

// IsBusinessRelevant reports whether normalized should be indexed. A disabled
// filter accepts everything.
func (f *Filter) IsBusinessRelevant(normalized string) bool {
	if !f.enabled {
		return true
	}
	n := utf8.RuneCountInString(normalized)
	if n < f.minLength || n > f.maxLength {
		return false
	}
	_, excluded := f.ExcludedBy(normalized)
	return !excluded
}

// ExcludedBy returns the exclusion category matching normalized, if any.
func (f *Filter) ExcludedBy(normalized string) (string, bool) {
	candidate := normalized
	if f.caseInsensitive {
		candidate = strings.ToLower(candidate)
	}
	if category, ok := f.exact[candidate]; ok {
		return category, true
	}
	for _, g := range f.globs {
		if g.pattern.Match(candidate) {
			return g.category, true
		}
	}
	return "", false
}
