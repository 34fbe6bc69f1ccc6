package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/keyword-crawler/internal/domain"
)

// Document is a parsed HTML page together with the URL its relative links
// resolve against.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse parses body as HTML. pageURL is the final URL the page was served
// from; a <base href> in the page overrides it for link resolution.
func Parse(body []byte, pageURL *url.URL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ParseError{URL: pageURL.String(), Err: err}
	}
	d := &Document{doc: doc, base: pageURL}
	if href, ok := doc.Find("head base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			d.base = pageURL.ResolveReference(ref)
		}
	}
	return d, nil
}

// Base returns the URL relative links resolve against.
func (d *Document) Base() *url.URL { return d.base }

// Find runs a CSS selector over the whole document.
func (d *Document) Find(selector string) *goquery.Selection { return d.doc.Find(selector) }

// Selection returns the root selection.
func (d *Document) Selection() *goquery.Selection { return d.doc.Selection }

// metaContent returns the content of the first meta tag whose name,
// property or itemprop attribute equals one of keys (case-insensitive).
func (d *Document) metaContent(keys ...string) string {
	var out string
	d.doc.Find("meta[content]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"name", "property", "itemprop", "http-equiv"} {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			for _, k := range keys {
				if strings.EqualFold(strings.TrimSpace(v), k) {
					if c := strings.TrimSpace(s.AttrOr("content", "")); c != "" {
						out = c
						return false
					}
				}
			}
		}
		return true
	})
	return out
}
