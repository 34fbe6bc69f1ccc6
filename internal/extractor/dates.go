package extractor

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DateExtractor finds a page's publication and modification dates. Either
// may be nil when the page does not carry one.
type DateExtractor interface {
	Dates(doc *Document) (published, modified *time.Time)
}

var (
	publishedKeys = []string{
		"article:published_time", "og:published_time", "datePublished", "date",
		"publish-date", "publish_date", "publication-date", "pubdate", "dc.date",
		"dc.date.issued", "dcterms.created", "sailthru.date", "parsely-pub-date",
	}
	modifiedKeys = []string{
		"article:modified_time", "article:updated_time", "og:updated_time", "dateModified",
		"last-modified", "date-modified", "dcterms.modified", "dc.date.modified",
	}
)

// MetaDateExtractor reads dates from meta tags, JSON-LD blocks and
// <time datetime> elements, in that order of preference.
type MetaDateExtractor struct{}

func (MetaDateExtractor) Dates(doc *Document) (published, modified *time.Time) {
	published = ParseDate(doc.metaContent(publishedKeys...))
	modified = ParseDate(doc.metaContent(modifiedKeys...))

	if published == nil || modified == nil {
		p, m := jsonLDDates(doc)
		if published == nil {
			published = p
		}
		if modified == nil {
			modified = m
		}
	}

	if published == nil {
		doc.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			published = ParseDate(s.AttrOr("datetime", ""))
			return published == nil
		})
	}
	return published, modified
}

func jsonLDDates(doc *Document) (published, modified *time.Time) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		walkJSONLD(raw, func(obj map[string]any) {
			if published == nil {
				if v, ok := obj["datePublished"].(string); ok {
					published = ParseDate(v)
				}
			}
			if modified == nil {
				if v, ok := obj["dateModified"].(string); ok {
					modified = ParseDate(v)
				}
			}
		})
		return published == nil || modified == nil
	})
	return published, modified
}

// walkJSONLD visits every object in a JSON-LD value, including @graph
// members.
func walkJSONLD(v any, fn func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		fn(t)
		for _, child := range t {
			walkJSONLD(child, fn)
		}
	case []any:
		for _, child := range t {
			walkJSONLD(child, fn)
		}
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate accepts the date formats commonly found in page metadata. It
// returns nil when s is not a recognised date.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
