package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
)

var (
	headingOne = cascadia.MustCompile("h1")
	titleTag   = cascadia.MustCompile("title")
	metaTags   = cascadia.MustCompile("meta[name]")
)

// PageExtractor runs the scored extraction passes over a service page.
type PageExtractor struct {
	validator *keyword.Validator
	cards     []cascadia.Selector
}

// NewPageExtractor compiles the service card selectors.
func NewPageExtractor(validator *keyword.Validator, cfg rules.ServicePages) (*PageExtractor, error) {
	e := &PageExtractor{validator: validator}
	for _, sel := range cfg.CardSelectors {
		compiled, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("compile card selector %q: %w", sel, err)
		}
		e.cards = append(e.cards, compiled)
	}
	return e, nil
}

type extractionPass struct {
	method crawler.ExtractionMethod
	run    func(doc *goquery.Document) []string
}

// Extract returns validated candidates for the page. A keyword found by more
// than one pass is reported once, with the highest confidence.
func (e *PageExtractor) Extract(doc *goquery.Document, pageURL string, role crawler.Role) []crawler.Candidate {
	if doc == nil {
		return nil
	}
	passes := []extractionPass{
		{crawler.MethodJSONLD, jsonLDNames},
		{crawler.MethodH1, headings},
		{crawler.MethodTitle, pageTitle},
		{crawler.MethodMeta, metaKeywords},
	}
	if role == crawler.RoleServiceListing {
		passes = append(passes, extractionPass{crawler.MethodServiceCard, e.cardHeadings})
	}

	var (
		out  []crawler.Candidate
		best = make(map[string]int)
	)
	for _, pass := range passes {
		for _, raw := range pass.run(doc) {
			text := keyword.DisplayText(raw)
			if text == "" || !e.validator.Valid(text) {
				continue
			}
			candidate := crawler.Candidate{
				Text:       text,
				SourceURL:  pageURL,
				Method:     pass.method,
				Confidence: pass.method.Confidence(),
				Role:       role,
			}
			norm := keyword.Normalize(text)
			if i, ok := best[norm]; ok {
				if candidate.Confidence > out[i].Confidence {
					out[i] = candidate
				}
				continue
			}
			best[norm] = len(out)
			out = append(out, candidate)
		}
	}
	return out
}

func headings(doc *goquery.Document) []string {
	return texts(doc.FindMatcher(headingOne))
}

func pageTitle(doc *goquery.Document) []string {
	title := cleanTitle(doc.FindMatcher(titleTag).First().Text())
	if title == "" {
		return nil
	}
	return []string{title}
}

func metaKeywords(doc *goquery.Document) []string {
	var out []string
	doc.FindMatcher(metaTags).Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), "keywords") {
			return
		}
		for _, part := range strings.Split(s.AttrOr("content", ""), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	})
	return out
}

func (e *PageExtractor) cardHeadings(doc *goquery.Document) []string {
	var out []string
	for _, sel := range e.cards {
		out = append(out, texts(doc.FindMatcher(sel))...)
	}
	return out
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}
