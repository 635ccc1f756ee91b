package keyword

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

func newDefaultFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := NewFilter(rules.Default().Exclusions)
	require.NoError(t, err)
	return f
}

func TestFilterRejectsExcludedCategories(t *testing.T) {
	t.Parallel()

	f := newDefaultFilter(t)
	cases := map[string]string{
		"home":                 "navigation",
		"privacy policy":       "legal",
		"linkedin":             "social",
		"sign in":              "auth",
		"shopping cart":        "utility",
		"contact us":           "support",
		"terms and conditions": "legal",
		"read more about us":   "navigation",
	}
	for keyword, category := range cases {
		got, excluded := f.ExcludedBy(keyword)
		require.True(t, excluded, keyword)
		require.Equal(t, category, got, keyword)
		require.False(t, f.IsBusinessRelevant(keyword), keyword)
	}
}

func TestFilterAcceptsBusinessKeywords(t *testing.T) {
	t.Parallel()

	f := newDefaultFilter(t)
	for _, keyword := range []string{"cloud migration", "managed it services", "web design", "seo"} {
		require.True(t, f.IsBusinessRelevant(keyword), keyword)
	}
}

func TestFilterLengthBounds(t *testing.T) {
	t.Parallel()

	f := newDefaultFilter(t)
	require.False(t, f.IsBusinessRelevant("a"))
	require.True(t, f.IsBusinessRelevant("ai"))
	require.True(t, f.IsBusinessRelevant(strings.Repeat("k", 100)))
	require.False(t, f.IsBusinessRelevant(strings.Repeat("k", 101)))
}

func TestFilterDisabledAcceptsEverything(t *testing.T) {
	t.Parallel()

	cfg := rules.Default().Exclusions
	cfg.Enabled = false
	f, err := NewFilter(cfg)
	require.NoError(t, err)
	require.False(t, f.Enabled())
	require.True(t, f.IsBusinessRelevant("home"))
	require.True(t, f.IsBusinessRelevant(""))
}

func TestFilterCaseSensitivePatterns(t *testing.T) {
	t.Parallel()

	cfg := rules.Exclusions{
		Enabled:   true,
		MinLength: 2,
		MaxLength: 100,
		Categories: map[string][]string{
			"navigation": {"Home", "Go *"},
		},
	}
	f, err := NewFilter(cfg)
	require.NoError(t, err)
	require.True(t, f.IsBusinessRelevant("home"))
	require.True(t, f.IsBusinessRelevant("go live"))

	cfg.CaseInsensitive = true
	f, err = NewFilter(cfg)
	require.NoError(t, err)
	require.False(t, f.IsBusinessRelevant("home"))
	require.False(t, f.IsBusinessRelevant("go live"))
}

func TestFilterNormalizesExactPatterns(t *testing.T) {
	t.Parallel()

	cfg := rules.Exclusions{
		Enabled:         true,
		CaseInsensitive: true,
		MinLength:       2,
		MaxLength:       100,
		Categories: map[string][]string{
			"legal": {"Terms & Conditions"},
		},
	}
	f, err := NewFilter(cfg)
	require.NoError(t, err)
	require.False(t, f.IsBusinessRelevant(Normalize("Terms & Conditions")))
}

func TestNewFilterRejectsBadGlob(t *testing.T) {
	t.Parallel()

	_, err := NewFilter(rules.Exclusions{
		Enabled:    true,
		MaxLength:  100,
		Categories: map[string][]string{"utility": {"[unterminated*"}},
	})
	require.Error(t, err)
}
