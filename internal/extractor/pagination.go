package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PaginationClassifier decides whether an anchor points at the next page of
// a paginated listing.
type PaginationClassifier interface {
	IsPagination(anchor *goquery.Selection, target *url.URL) bool
}

var (
	nextTexts = map[string]bool{
		"next": true, "next page": true, "next »": true, "next ›": true, "next >": true,
		"»": true, "›": true, ">": true, ">>": true, "→": true, "older posts": true,
		"older entries": true, "load more": true, "more": true, "show more": true,
		"suivant": true, "weiter": true, "siguiente": true, "próxima": true,
	}
	pagerContainers = ".pagination, .pager, .paging, .page-numbers, .pagenav, .nav-links, " +
		"nav[aria-label*=agination], [role=navigation][aria-label*=agination]"
	pageParam = regexp.MustCompile(`(?i)(^|[?&])(page|p|pg|paged|start|offset)=\d+`)
	pagePath  = regexp.MustCompile(`(?i)/(page|p)/\d+/?$`)
)

// HeuristicPagination recognises rel="next", "next" style anchor text and
// classes, and numbered links inside a pager.
type HeuristicPagination struct{}

func (HeuristicPagination) IsPagination(a *goquery.Selection, target *url.URL) bool {
	rel := strings.ToLower(a.AttrOr("rel", ""))
	if strings.Contains(rel, "next") {
		return true
	}

	class := strings.ToLower(a.AttrOr("class", ""))
	if strings.Contains(class, "next") || strings.Contains(class, "pagination") {
		return true
	}
	if aria := strings.ToLower(strings.TrimSpace(a.AttrOr("aria-label", ""))); strings.HasPrefix(aria, "next") {
		return true
	}

	text := strings.ToLower(collapse(a.Text()))
	if nextTexts[text] {
		return true
	}
	if a.ParentsFiltered("li.next, li.pagination-next").Length() > 0 {
		return true
	}

	inPager := a.ParentsFiltered(pagerContainers).Length() > 0
	if inPager && isNumeric(text) {
		return true
	}
	if inPager || isNumeric(text) {
		if pageParam.MatchString(target.RawQuery) || pagePath.MatchString(target.Path) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
