package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	r := Default()
	require.True(t, r.Exclusions.Enabled)
	require.Equal(t, 2, r.Exclusions.MinLength)
	require.Equal(t, 100, r.Exclusions.MaxLength)
	require.Equal(t,
		[]string{"auth", "legal", "navigation", "social", "support", "utility"},
		r.Exclusions.CategoryNames(),
	)
	require.Equal(t, 20, r.ServicePages.MaxPages)
	require.Contains(t, r.ServicePages.IncludePatterns, "/what-we-do")
	require.Contains(t, r.ServicePages.ExcludePatterns, "/blog")
	require.Contains(t, r.Validation.ServiceIndicators, "consulting")
	require.Contains(t, r.Validation.GenericPhrases, "our services")
	require.Equal(t, 8, r.Validation.MaxWords)
}

func TestLoadOverridesSections(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "keyword_exclusions.yaml")
	body := `
exclusions:
  enabled: false
  categories:
    social:
      - mastodon
service_pages:
  max_pages: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	require.False(t, r.Exclusions.Enabled)
	require.Equal(t, []string{"mastodon"}, r.Exclusions.Categories["social"])
	require.NotEmpty(t, r.Exclusions.Categories["legal"], "untouched categories keep defaults")
	require.Equal(t, 5, r.ServicePages.MaxPages)
	require.NotEmpty(t, r.ServicePages.IncludePatterns)
	require.Equal(t, 100, r.Exclusions.MaxLength)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad yaml":       "exclusions: [",
		"zero max pages": "service_pages:\n  max_pages: 0\n",
		"min over max":   "exclusions:\n  min_length: 10\n  max_length: 5\n",
		"empty include":  "service_pages:\n  include_patterns: []\n",
		"word bounds":    "validation:\n  min_words: 9\n",
	}
	for name, body := range cases {
		_, err := Parse([]byte(body))
		require.Error(t, err, name)
	}
}

func TestParseEmptyReturnsDefaults(t *testing.T) {
	t.Parallel()

	r, err := Parse([]byte("   \n"))
	require.NoError(t, err)
	require.Equal(t, Default(), r)
}
