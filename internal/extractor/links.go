package extractor

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/keyword-crawler/pkg/utils"
)

// Links holds the in-scope links of a page. Pagination is a subset of
// Links.
type Links struct {
	Links      []*url.URL
	Pagination []*url.URL
}

// IsPagination reports whether u is one of the page's pagination links.
func (l Links) IsPagination(u *url.URL) bool {
	key := utils.NormalizeURL(u)
	for _, p := range l.Pagination {
		if utils.NormalizeURL(p) == key {
			return true
		}
	}
	return false
}

var skipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".ico": true, ".bmp": true, ".tif": true, ".tiff": true, ".avif": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true,
	".pptx": true, ".odt": true, ".csv": true, ".rtf": true,
	".zip": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true, ".tar": true,
	".mp3": true, ".mp4": true, ".m4a": true, ".avi": true, ".mov": true, ".wmv": true,
	".webm": true, ".ogg": true, ".wav": true, ".flac": true,
	".css": true, ".js": true, ".json": true, ".xml": true, ".rss": true, ".atom": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".exe": true, ".dmg": true,
	".apk": true, ".iso": true, ".bin": true,
}

// LinkDiscoverer collects the links a crawl may follow from a page.
type LinkDiscoverer struct {
	pagination PaginationClassifier
}

// NewLinkDiscoverer returns a discoverer. A nil classifier uses
// HeuristicPagination.
func NewLinkDiscoverer(pc PaginationClassifier) *LinkDiscoverer {
	if pc == nil {
		pc = HeuristicPagination{}
	}
	return &LinkDiscoverer{pagination: pc}
}

// Discover resolves every anchor in doc and keeps the ones inside scope, in
// document order without duplicates. <link rel="next"> targets are added as
// pagination links.
func (ld *LinkDiscoverer) Discover(doc *Document, scope Scope) Links {
	var out Links
	seen := make(map[string]bool)
	paged := make(map[string]bool)

	add := func(u *url.URL, pagination bool) {
		key := utils.NormalizeURL(u)
		if !seen[key] {
			seen[key] = true
			out.Links = append(out.Links, u)
		}
		if pagination && !paged[key] {
			paged[key] = true
			out.Pagination = append(out.Pagination, u)
		}
	}

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		if rel := strings.ToLower(s.AttrOr("rel", "")); strings.Contains(rel, "nofollow") && !strings.Contains(rel, "next") {
			return
		}
		u := resolve(doc.Base(), s.AttrOr("href", ""))
		if u == nil || !scope.Contains(u) {
			return
		}
		add(u, ld.pagination.IsPagination(s, u))
	})

	doc.Find(`link[rel~="next"][href]`).Each(func(_ int, s *goquery.Selection) {
		u := resolve(doc.Base(), s.AttrOr("href", ""))
		if u == nil || !scope.Contains(u) {
			return
		}
		add(u, true)
	})

	return out
}

// resolve returns the absolute form of href, or nil when the link cannot be
// crawled.
func resolve(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "sms:", "ftp:", "file:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil
		}
	}
	u, err := utils.ToAbsoluteURL(base, href)
	if err != nil {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	if skipExtensions[strings.ToLower(path.Ext(u.Path))] {
		return nil
	}
	return u
}
