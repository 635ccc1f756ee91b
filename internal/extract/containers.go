// Package extract mines keyword candidates and service page links out of
// fetched HTML documents.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	semanticNav = cascadia.MustCompile("nav, menu")
	ariaNav     = cascadia.MustCompile("[role], [aria-label]")
	classNav    = cascadia.MustCompile(strings.Join([]string{
		".nav", "#nav", ".menu", "#menu", ".navigation", "#navigation",
		".navbar", ".nav-menu", ".main-menu", ".primary-menu", ".site-navigation",
		".main-navigation", ".primary-navigation", ".header-menu", ".top-menu",
		".header-nav", "#main-menu", "#primary-menu", "#site-navigation",
		".menu-container", ".nav-container", ".site-nav", "#site-nav",
	}, ", "))
	classOrID   = cascadia.MustCompile("[class], [id]")
	headerBlock = cascadia.MustCompile("header")
	anchors     = cascadia.MustCompile("a")
)

// navTokens are matched as substrings of class and id tokens by the fallback pass.
var navTokens = []string{"menu", "nav", "navigation", "navbar", "menubar"}

// ParseDocument parses an HTML body. The HTML parser is lenient, so an error
// only surfaces for unreadable input.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// navigationContainers returns every element recognized as navigation, in
// detection order, each node at most once.
func navigationContainers(doc *goquery.Document, includeHeader bool) []*html.Node {
	var (
		seen = make(map[*html.Node]struct{})
		out  []*html.Node
	)
	add := func(sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}

	add(doc.FindMatcher(semanticNav))
	add(doc.FindMatcher(ariaNav).FilterFunction(func(_ int, s *goquery.Selection) bool {
		role := strings.ToLower(strings.TrimSpace(s.AttrOr("role", "")))
		if role == "navigation" || role == "menubar" {
			return true
		}
		return strings.Contains(strings.ToLower(s.AttrOr("aria-label", "")), "navigation")
	}))
	add(doc.FindMatcher(classNav))
	add(doc.FindMatcher(classOrID).FilterFunction(func(_ int, s *goquery.Selection) bool {
		if s.Is("html, body") {
			return false
		}
		return hasNavToken(s.AttrOr("class", "")) || hasNavToken(s.AttrOr("id", ""))
	}))
	if includeHeader {
		add(doc.FindMatcher(headerBlock))
	}
	return out
}

func hasNavToken(attr string) bool {
	for _, token := range strings.Fields(strings.ToLower(attr)) {
		for _, nav := range navTokens {
			if strings.Contains(token, nav) {
				return true
			}
		}
	}
	return false
}

// navigationAnchors returns the anchors inside any navigation container, each
// once, in document order.
func navigationAnchors(doc *goquery.Document, includeHeader bool) []*goquery.Selection {
	inNav := make(map[*html.Node]struct{})
	for _, container := range navigationContainers(doc, includeHeader) {
		if container.Type == html.ElementNode && container.Data == "a" {
			inNav[container] = struct{}{}
		}
		for _, n := range cascadia.QueryAll(container, anchors) {
			inNav[n] = struct{}{}
		}
	}
	if len(inNav) == 0 {
		return nil
	}
	var out []*goquery.Selection
	doc.FindMatcher(anchors).Each(func(_ int, s *goquery.Selection) {
		if _, ok := inNav[s.Get(0)]; ok {
			out = append(out, s)
		}
	})
	return out
}
