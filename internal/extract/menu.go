package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
)

const (
	minMenuItemLength = 2
	maxMenuItemLength = 100
)

var menuNoise = map[string]struct{}{
	"skip to content":    {},
	"skip to main":       {},
	"skip navigation":    {},
	"skip to navigation": {},
	"menu":               {},
	"toggle":             {},
	"toggle navigation":  {},
	"close":              {},
	"open menu":          {},
	"close menu":         {},
}

// MenuExtractor yields the raw text of navigation menu items.
type MenuExtractor struct{}

// NewMenuExtractor returns a MenuExtractor.
func NewMenuExtractor() *MenuExtractor {
	return &MenuExtractor{}
}

// Extract returns one string per navigation anchor. Repeated labels from
// different anchors are all returned; the caller aggregates frequency.
func (m *MenuExtractor) Extract(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	var items []string
	for _, a := range navigationAnchors(doc, false) {
		text := anchorText(a)
		if !usableMenuItem(text) {
			continue
		}
		items = append(items, text)
	}
	return items
}

func anchorText(s *goquery.Selection) string {
	if text := keyword.DisplayText(s.Text()); text != "" {
		return text
	}
	if label := keyword.DisplayText(s.AttrOr("aria-label", "")); label != "" {
		return label
	}
	return keyword.DisplayText(s.AttrOr("title", ""))
}

func usableMenuItem(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < minMenuItemLength || n > maxMenuItemLength {
		return false
	}
	if _, noise := menuNoise[strings.ToLower(text)]; noise {
		return false
	}
	return strings.IndexFunc(text, func(r rune) bool { return !unicode.IsDigit(r) && !unicode.IsSpace(r) }) >= 0
}
