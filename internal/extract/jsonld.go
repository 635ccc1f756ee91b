package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var scriptTags = cascadia.MustCompile("script[type]")

var serviceTypes = map[string]struct{}{
	"service": {},
	"product": {},
	"offer":   {},
}

// jsonLDNames returns the name of every Service, Product or Offer object in
// the page's JSON-LD blocks. A block that fails to parse contributes nothing.
func jsonLDNames(doc *goquery.Document) []string {
	var names []string
	doc.FindMatcher(scriptTags).Each(func(_ int, s *goquery.Selection) {
		if !strings.Contains(strings.ToLower(s.AttrOr("type", "")), "ld+json") {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return
		}
		collectLDNames(payload, &names)
	})
	return names
}

func collectLDNames(v any, names *[]string) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			collectLDNames(item, names)
		}
	case map[string]any:
		if isServiceType(node["@type"]) {
			if name, ok := node["name"].(string); ok && strings.TrimSpace(name) != "" {
				*names = append(*names, name)
			}
		}
		keys := make([]string, 0, len(node))
		for key := range node {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			switch node[key].(type) {
			case map[string]any, []any:
				collectLDNames(node[key], names)
			}
		}
	}
}

func isServiceType(v any) bool {
	switch t := v.(type) {
	case string:
		_, ok := serviceTypes[schemaLocalName(t)]
		return ok
	case []any:
		for _, item := range t {
			if isServiceType(item) {
				return true
			}
		}
	}
	return false
}

// schemaLocalName maps "https://schema.org/Service" and "schema:Service" to "service".
func schemaLocalName(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.LastIndexAny(t, "/:#"); i >= 0 {
		t = t[i+1:]
	}
	return strings.ToLower(t)
}
