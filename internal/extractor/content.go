package extractor

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// noise is removed before text extraction.
const noise = "script, style, noscript, template, svg, iframe, canvas, object, embed, nav, " +
	"[role=navigation], [aria-hidden=true], [hidden]"

const summaryLength = 200

// Content is what the crawler keeps from a page.
type Content struct {
	Title         string
	Description   string
	CleanedText   string
	PublishedDate *time.Time
	LastModified  *time.Time
}

// Summary returns the page description, or the opening of its text cut at a
// word boundary.
func (c *Content) Summary() string {
	if c.Description != "" {
		return c.Description
	}
	return Truncate(c.CleanedText, summaryLength)
}

// Extractor turns parsed documents into cleaned content.
type Extractor struct {
	dates DateExtractor
}

// New returns an Extractor. A nil DateExtractor uses MetaDateExtractor.
func New(dates DateExtractor) *Extractor {
	if dates == nil {
		dates = MetaDateExtractor{}
	}
	return &Extractor{dates: dates}
}

// Extract pulls title, description, dates and visible text from doc. The
// document itself is left untouched.
func (e *Extractor) Extract(doc *Document) *Content {
	c := &Content{
		Title:       title(doc),
		Description: collapse(doc.metaContent("description", "og:description", "twitter:description")),
	}
	c.PublishedDate, c.LastModified = e.dates.Dates(doc)

	root := doc.Selection().Clone()
	root.Find(noise).Remove()
	body := root.Find("body")
	if body.Length() == 0 {
		body = root
	}
	c.CleanedText = CleanText(visibleText(body))
	return c
}

func title(doc *Document) string {
	if t := collapse(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := collapse(doc.metaContent("og:title", "twitter:title")); t != "" {
		return t
	}
	return collapse(doc.Find("h1, h2, h3, h4, h5, h6").First().Text())
}

// CleanText collapses runs of whitespace to single spaces and normalizes to
// NFC.
func CleanText(s string) string {
	return norm.NFC.String(collapse(s))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes, backing off to the last word boundary.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "details": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "summary": true, "table": true, "td": true, "th": true,
	"tr": true, "ul": true, "option": true, "button": true,
}

// visibleText walks the selection's nodes and separates block level
// elements with newlines so adjacent paragraphs do not run together.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if blockElements[n.Data] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
