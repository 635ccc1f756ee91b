package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

func newTestLocator() *ServicePageLocator {
	return NewServicePageLocator(rules.Default().ServicePages)
}

func TestServicePageLocatorLocate(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
<nav>
  <a href="/services">Services</a>
  <a href="/services/consulting">Consulting</a>
  <a href="/services/blog">Services Blog</a>
  <a href="https://blog.acme.com/solutions/cloud">Cloud</a>
  <a href="https://other.com/services">Partner</a>
  <a href="/services#top">Services again</a>
  <a href="/about/services">About our services</a>
  <a href="mailto:hello@acme.com">Mail</a>
  <a href="/contact">Contact</a>
</nav>
<header><a href="/what-we-do/">What we do</a></header>
<div class="main-menu"><a href="/en/products/widgets/pro?ref=nav">Pro</a></div>
<footer><a href="/services/footer-only">Footer only</a></footer>
</body></html>`)

	pages := newTestLocator().Locate(doc, "https://www.acme.com/")
	require.Equal(t, []ServicePage{
		{URL: "https://www.acme.com/services", Role: crawler.RoleServiceListing},
		{URL: "https://www.acme.com/services/consulting", Role: crawler.RoleServiceDetail},
		{URL: "https://blog.acme.com/solutions/cloud", Role: crawler.RoleServiceDetail},
		{URL: "https://www.acme.com/what-we-do/", Role: crawler.RoleServiceListing},
		{URL: "https://www.acme.com/en/products/widgets/pro", Role: crawler.RoleServiceDetail},
	}, pages)
}

func TestServicePageLocatorCapsPages(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<nav>")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<a href="/services/s%d">Service %d</a>`, i, i)
	}
	b.WriteString("</nav>")

	pages := newTestLocator().Locate(mustDoc(t, b.String()), "https://acme.com/")
	require.Len(t, pages, 20)
	require.Equal(t, "https://acme.com/services/s0", pages[0].URL)
	require.Equal(t, "https://acme.com/services/s19", pages[19].URL)
}

func TestServicePageLocatorTrailingSlashDuplicates(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<nav><a href="/solutions/">Solutions</a><a href="/solutions">Solutions</a></nav>`)
	pages := newTestLocator().Locate(doc, "https://acme.com/")
	require.Equal(t, []ServicePage{{URL: "https://acme.com/solutions/", Role: crawler.RoleServiceListing}}, pages)
}

func TestServicePageLocatorBadInput(t *testing.T) {
	t.Parallel()

	l := newTestLocator()
	require.Nil(t, l.Locate(nil, "https://acme.com/"))
	require.Nil(t, l.Locate(mustDoc(t, `<nav><a href="/services">S</a></nav>`), "not a url"))
}

func TestServicePageLocatorClassify(t *testing.T) {
	t.Parallel()

	l := newTestLocator()
	tests := []struct {
		path string
		role crawler.Role
		ok   bool
	}{
		{"/services", crawler.RoleServiceListing, true},
		{"/Services/", crawler.RoleServiceListing, true},
		{"/services/consulting", crawler.RoleServiceDetail, true},
		{"/de/capabilities", crawler.RoleServiceListing, true},
		{"/expertise/cloud/aws", crawler.RoleServiceDetail, true},
		{"/services/blog", "", false},
		{"/news/services", "", false},
		{"/privacy", "", false},
		{"/pricing", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			role, ok := l.Classify(tt.path)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.role, role)
		})
	}
}

func TestNewServicePageLocatorDefaultsMaxPages(t *testing.T) {
	t.Parallel()

	cfg := rules.Default().ServicePages
	cfg.MaxPages = 0
	require.Equal(t, defaultMaxServicePages, NewServicePageLocator(cfg).maxPages)
}
