// Package rules loads the keyword rule tables (exclusion categories, service
// page URL patterns and service keyword validation vocabulary) from YAML.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Rules is the full rule set consumed by the filter, locator and extractors.
type Rules struct {
	Exclusions   Exclusions   `yaml:"exclusions"`
	ServicePages ServicePages `yaml:"service_pages"`
	Validation   Validation   `yaml:"validation"`
}

// Exclusions configures the business-relevance filter.
type Exclusions struct {
	Enabled         bool                `yaml:"enabled"`
	CaseInsensitive bool                `yaml:"case_insensitive"`
	MinLength       int                 `yaml:"min_length"`
	MaxLength       int                 `yaml:"max_length"`
	Categories      map[string][]string `yaml:"categories"`
}

// CategoryNames returns the configured category names in stable order.
func (e Exclusions) CategoryNames() []string {
	names := make([]string, 0, len(e.Categories))
	for name := range e.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServicePages configures service page discovery.
type ServicePages struct {
	MaxPages        int      `yaml:"max_pages"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	CardSelectors   []string `yaml:"card_selectors"`
}

// Validation configures service keyword validation.
type Validation struct {
	MinLength         int      `yaml:"min_length"`
	MaxLength         int      `yaml:"max_length"`
	MinWords          int      `yaml:"min_words"`
	MaxWords          int      `yaml:"max_words"`
	ServiceIndicators []string `yaml:"service_indicators"`
	GenericPhrases    []string `yaml:"generic_phrases"`
}

// Default returns the embedded rule set.
func Default() Rules {
	r, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// Load reads path on top of the embedded defaults. An empty path returns the
// defaults.
func Load(path string) (Rules, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes override YAML over the embedded defaults. Sections present in
// override replace the defaults; exclusion categories are replaced per name.
func Parse(override []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(defaultRules, &r); err != nil {
		return Rules{}, fmt.Errorf("decode default rules: %w", err)
	}
	if len(bytes.TrimSpace(override)) > 0 {
		if err := yaml.Unmarshal(override, &r); err != nil {
			return Rules{}, fmt.Errorf("decode rules: %w", err)
		}
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate enforces required values and reasonable limits.
func (r Rules) Validate() error {
	if r.Exclusions.MinLength < 0 || r.Exclusions.MaxLength <= 0 {
		return errors.New("exclusions.max_length must be > 0")
	}
	if r.Exclusions.MinLength > r.Exclusions.MaxLength {
		return errors.New("exclusions.min_length must be <= max_length")
	}
	if r.ServicePages.MaxPages <= 0 {
		return errors.New("service_pages.max_pages must be > 0")
	}
	if len(r.ServicePages.IncludePatterns) == 0 {
		return errors.New("service_pages.include_patterns must not be empty")
	}
	if r.Validation.MaxLength <= 0 || r.Validation.MaxWords <= 0 {
		return errors.New("validation.max_length and validation.max_words must be > 0")
	}
	if r.Validation.MinLength > r.Validation.MaxLength {
		return errors.New("validation.min_length must be <= max_length")
	}
	if r.Validation.MinWords > r.Validation.MaxWords {
		return errors.New("validation.min_words must be <= max_words")
	}
	return nil
}
