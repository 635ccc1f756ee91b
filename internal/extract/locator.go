package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

const defaultMaxServicePages = 20

// ServicePage is a discovered service URL and its classification.
type ServicePage struct {
	URL  string
	Role crawler.Role
}

// ServicePageLocator picks service pages out of homepage navigation links.
type ServicePageLocator struct {
	include  []string
	exclude  []string
	maxPages int
}

// NewServicePageLocator builds a locator from the service page rule table.
func NewServicePageLocator(cfg rules.ServicePages) *ServicePageLocator {
	l := &ServicePageLocator{
		include:  lowerAll(cfg.IncludePatterns),
		exclude:  lowerAll(cfg.ExcludePatterns),
		maxPages: cfg.MaxPages,
	}
	if l.maxPages <= 0 {
		l.maxPages = defaultMaxServicePages
	}
	return l
}

// Locate returns at most maxPages service pages linked from the homepage's
// navigation, in order of appearance. Links leaving the homepage's
// registrable domain are ignored.
func (l *ServicePageLocator) Locate(doc *goquery.Document, homepageURL string) []ServicePage {
	if doc == nil {
		return nil
	}
	base, err := url.Parse(homepageURL)
	if err != nil || base.Hostname() == "" {
		return nil
	}
	var (
		seen = make(map[string]struct{})
		out  []ServicePage
	)
	for _, a := range navigationAnchors(doc, true) {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		target, err := crawler.ResolveLink(base, href)
		if err != nil || !crawler.SameSite(target.Hostname(), base.Hostname()) {
			continue
		}
		key := strings.TrimSuffix(target.String(), "/")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		role, ok := l.Classify(target.Path)
		if !ok {
			continue
		}
		out = append(out, ServicePage{URL: target.String(), Role: role})
		if len(out) >= l.maxPages {
			break
		}
	}
	return out
}

// Classify decides whether path is a service page and which kind. Exclusion
// patterns win over inclusion patterns. Depth counts the matched segment, so
// "/services" is a listing and "/services/consulting" a detail page.
func (l *ServicePageLocator) Classify(path string) (crawler.Role, bool) {
	p := strings.ToLower(path)
	for _, pattern := range l.exclude {
		if strings.Contains(p, pattern) {
			return "", false
		}
	}
	for _, pattern := range l.include {
		idx := strings.Index(p, pattern)
		if idx < 0 {
			continue
		}
		if segmentDepth(p[idx:]) <= 1 {
			return crawler.RoleServiceListing, true
		}
		return crawler.RoleServiceDetail, true
	}
	return "", false
}

func segmentDepth(path string) int {
	depth := 0
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			depth++
		}
	}
	return depth
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
