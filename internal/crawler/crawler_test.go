package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/fetcher"
)

// site serves a fixed set of pages and counts requests per path.
type site struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
	slow  map[string]time.Duration
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{hits: make(map[string]int), pages: pages, slow: make(map[string]time.Duration)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *site) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	s.mu.Lock()
	s.hits[key]++
	body, ok := s.pages[key]
	delay := s.slow[key]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if target, found := strings.CutPrefix(body, "redirect:"); found {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if key == "/robots.txt" {
		w.Header().Set("Content-Type", "text/plain")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	fmt.Fprint(w, body)
}

func (s *site) setSlow(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slow[path] = d
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) totalHits() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.hits))
	for k, v := range s.hits {
		out[k] = v
	}
	return out
}

func html(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(fetcher.New(fetcher.Options{}), append([]Option{WithRequestsPerSecond(0)}, opts...)...)
}

func crawl(t *testing.T, e *Engine, req domain.CrawlRequest) *domain.CrawlResult {
	t.Helper()
	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Results, len(req.URLs))
	return res
}

func boolPtr(b bool) *bool { return &b }

func TestMaxPagesOne(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":      html("Home", `<p>An example page.</p><a href="/about">about</a>`),
		"/about": html("About", `<p>example</p>`),
	})

	res := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"example"}, MaxPages: 1})
	d := res.Results[0]

	assert.Equal(t, 1, d.PagesCrawled)
	assert.True(t, d.HasMorePages)
	assert.Equal(t, domain.StatusBudgeted, d.Status)
	assert.Equal(t, domain.BudgetMaxPages, d.Budget)
	assert.Equal(t, "Home", d.Title)
	require.Len(t, d.Matches, 1)
	assert.Equal(t, 0, s.hitCount("/about"))
}

func TestMaxPagesOneWithoutLinks(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{"/": html("Home", `<p>An example page.</p>`)})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"example"}, MaxPages: 1}).Results[0]

	assert.Equal(t, 1, d.PagesCrawled)
	assert.False(t, d.HasMorePages)
	assert.Equal(t, domain.StatusCompleted, d.Status)
}

func TestUnreachableSeedDoesNotAffectSiblings(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := "http://" + l.Addr().String()
	require.NoError(t, l.Close())

	s := newSite(t, map[string]string{"/": html("Healthy", `<p>golang news</p>`)})

	res := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{dead, s.URL}, Keywords: []string{"golang"}})

	bad, good := res.Results[0], res.Results[1]
	assert.Equal(t, domain.StatusFailed, bad.Status)
	assert.Contains(t, bad.Error, domain.ReasonNetworkError)
	assert.Empty(t, bad.Matches)
	assert.Zero(t, bad.PagesCrawled)
	assert.Nil(t, bad.Metadata)

	assert.Empty(t, good.Error)
	assert.Equal(t, 1, good.PagesCrawled)
	require.Len(t, good.Matches, 1)
	assert.Equal(t, 1, res.TotalPagesCrawled)
	assert.Equal(t, 1, res.FailedDomains())
}

func TestSeedHTTPErrorFailsDomain(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL + "/gone"}, Keywords: []string{"x"}}).Results[0]
	assert.Equal(t, domain.StatusFailed, d.Status)
	assert.Contains(t, d.Error, "http_status:404")
}

func TestPaginationNotFollowedWhenDisabled(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":        html("List", `<p>item one</p><a rel="next" href="/?page=2">Next</a>`),
		"/?page=2": html("List 2", `<p>item two</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{
		URLs: []string{s.URL}, Keywords: []string{"item"}, FollowPagination: boolPtr(false),
	}).Results[0]

	assert.Equal(t, 1, d.PagesCrawled)
	assert.Equal(t, 0, s.hitCount("/?page=2"))
	assert.Equal(t, domain.StatusCompleted, d.Status)
	assert.False(t, d.HasMorePages)
}

func TestPaginationStaysAtSameDepth(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":        html("List", `<a href="/a1">a1</a><a rel="next" href="/?page=2">Next</a>`),
		"/?page=2": html("List 2", `<a href="/a2">a2</a><a rel="next" href="/?page=3">Next</a>`),
		"/?page=3": html("List 3", `<p>end</p>`),
		"/a1":      html("A1", `<p>story</p><a href="/deep">deep</a>`),
		"/a2":      html("A2", `<p>story</p>`),
		"/deep":    html("Deep", `<p>story</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"story"}, MaxDepth: 1}).Results[0]

	assert.Equal(t, 5, d.PagesCrawled)
	assert.Equal(t, 1, s.hitCount("/?page=3"))
	assert.Equal(t, 0, s.hitCount("/deep"))
	assert.Equal(t, domain.BudgetMaxDepth, d.Budget)
	assert.True(t, d.HasMorePages)
}

func TestMaxTimeAbandonsSlowFetch(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{"/": html("Slow", `<p>slow</p>`)})
	s.setSlow("/", 5*time.Second)

	start := time.Now()
	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"slow"}, MaxTimeSeconds: 1}).Results[0]
	elapsed := time.Since(start)

	assert.Equal(t, domain.StatusBudgeted, d.Status)
	assert.Equal(t, domain.BudgetMaxTime, d.Budget)
	assert.True(t, d.HasMorePages)
	assert.Empty(t, d.Error)
	assert.Zero(t, d.PagesCrawled)
	assert.Less(t, elapsed, 2500*time.Millisecond)
}

func TestMaxTimeKeepsFinishedPages(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":     html("Home", `<p>fast keyword</p><a href="/slow">slow</a>`),
		"/slow": html("Slow", `<p>keyword</p>`),
	})
	s.setSlow("/slow", 5*time.Second)

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"keyword"}, MaxTimeSeconds: 1}).Results[0]

	assert.Equal(t, domain.BudgetMaxTime, d.Budget)
	assert.Equal(t, 1, d.PagesCrawled)
	require.Len(t, d.Matches, 1)
	require.NotNil(t, d.Metadata)
}

func TestDepthLimit(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":  html("Root", `<a href="/a">a</a>`),
		"/a": html("A", `<a href="/b">b</a>`),
		"/b": html("B", `<a href="/c">c</a>`),
		"/c": html("C", `<p>too deep</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"deep"}, MaxDepth: 2}).Results[0]

	assert.Equal(t, 3, d.PagesCrawled)
	assert.Equal(t, 0, s.hitCount("/c"))
	assert.Equal(t, domain.StatusBudgeted, d.Status)
	assert.Equal(t, domain.BudgetMaxDepth, d.Budget)
	assert.True(t, d.HasMorePages)
	assert.Empty(t, d.Matches)
}

func TestNoPageFetchedTwice(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":  html("Root", `<a href="/a">a</a><a href="/b">b</a><a href="/#top">self</a><a href="/">home</a>`),
		"/a": html("A", `<a href="/b">b</a><a href="/">home</a><a href="/a#x">self</a>`),
		"/b": html("B", `<a href="/a">a</a><a href="b">self</a><a href="/B/../b">dots</a>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"x"}, MaxDepth: 5, MaxPages: 50}).Results[0]

	for path, n := range s.totalHits() {
		assert.Equal(t, 1, n, "path %s fetched %d times", path, n)
	}
	assert.Equal(t, 3, d.PagesCrawled)
	assert.Equal(t, domain.StatusCompleted, d.Status)
	assert.False(t, d.HasMorePages)
}

func TestRedirectToKnownPageIsNotCountedTwice(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":      html("Root", `<a href="/a">a</a><a href="/old-a">old</a>`),
		"/a":     html("A", `<p>moved</p>`),
		"/old-a": "redirect:/a",
	})

	d := crawl(t, newTestEngine(WithPageWorkers(1)), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"moved"}}).Results[0]

	assert.Equal(t, 2, d.PagesCrawled)
	require.Len(t, d.Matches, 1)
	assert.Equal(t, s.URL+"/a", d.Matches[0].SourceURL)
}

func TestDateFilter(t *testing.T) {
	t.Parallel()
	dated := func(date, body string) string {
		return `<html><head><title>t</title><meta property="article:published_time" content="` + date + `"></head><body>` + body + `</body></html>`
	}
	s := newSite(t, map[string]string{
		"/":     html("Index", `<p>news</p><a href="/old">old</a><a href="/new">new</a>`),
		"/old":  dated("2020-05-01", `<p>news from the past</p><a href="/deep">more</a>`),
		"/new":  dated("2024-05-01", `<p>fresh news</p>`),
		"/deep": html("Deep", `<p>undated news</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{
		URLs: []string{s.URL}, Keywords: []string{"news"},
		DateFrom: "2024-01-01", DateTo: "2024-12-31", MaxDepth: 3,
	}).Results[0]

	assert.Equal(t, 3, d.PagesCrawled, "the out-of-range page is not counted")
	for _, m := range d.Matches {
		assert.NotEqual(t, s.URL+"/old", m.SourceURL)
	}
	assert.Equal(t, 1, s.hitCount("/old"))
	assert.Equal(t, 1, s.hitCount("/deep"), "links of filtered pages are still followed")
}

func TestDateFilterDoesNotUseMaxPages(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":   `<html><head><meta name="date" content="2001-01-01"></head><body><a href="/ok">ok</a></body></html>`,
		"/ok": html("Ok", `<p>match</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{
		URLs: []string{s.URL}, Keywords: []string{"match"}, MaxPages: 1, DateFrom: "2020-01-01",
	}).Results[0]

	assert.Equal(t, 1, d.PagesCrawled)
	require.Len(t, d.Matches, 1)
	assert.Equal(t, s.URL+"/ok", d.Matches[0].SourceURL)
}

func TestNonSeedFailuresAreSkipped(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":     html("Root", `<p>rust</p><a href="/gone">gone</a><a href="/fine">fine</a>`),
		"/fine": html("Fine", `<p>rust again</p>`),
	})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL + "/"}, Keywords: []string{"rust"}}).Results[0]

	assert.Empty(t, d.Error)
	assert.Equal(t, 2, d.PagesCrawled)
	require.Len(t, d.Matches, 2)
	assert.Equal(t, s.URL+"/", d.Matches[0].SourceURL)
	assert.Equal(t, s.URL+"/fine", d.Matches[1].SourceURL)
	assert.Equal(t, domain.StatusCompleted, d.Status)
}

func TestCrossDomainLinksNotFollowed(t *testing.T) {
	t.Parallel()
	other := newSite(t, map[string]string{"/": html("Other", `<p>kw</p>`)})
	s := newSite(t, map[string]string{"/": html("Root", `<p>kw</p><a href="`+other.URL+`/">other</a>`)})

	d := crawl(t, newTestEngine(), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"kw"}}).Results[0]

	assert.Equal(t, 1, d.PagesCrawled)
	assert.Equal(t, 0, other.hitCount("/"))
}

func TestMetadataComesFromSeed(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/": `<html><head><title>Seed</title><meta name="description" content="Seed summary">
<meta property="article:modified_time" content="2024-02-03T04:05:06Z"></head>
<body><p>content</p><a href="/next">n</a></body></html>`,
		"/next": html("Next", `<p>content</p>`),
	})

	d := crawl(t, newTestEngine(WithLanguageDetector(fixedLanguage("en"))), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"content"}}).Results[0]

	assert.Equal(t, "Seed", d.Title)
	require.NotNil(t, d.Metadata)
	assert.Equal(t, "Seed summary", d.Metadata.ContentSummary)
	assert.Equal(t, "en", d.Metadata.ContentLanguage)
	require.NotNil(t, d.Metadata.LastModified)
	assert.Equal(t, 2024, d.Metadata.LastModified.Year())
	assert.Nil(t, d.Metadata.PublishedDate)
	assert.False(t, d.Metadata.CrawlTimestamp.IsZero())
}

type fixedLanguage string

func (f fixedLanguage) Detect(string) string { return string(f) }

func TestRobotsDisallow(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/robots.txt":   "User-agent: *\nDisallow: /private\n",
		"/":             html("Root", `<p>secret</p><a href="/private/page">p</a><a href="/public">p</a>`),
		"/private/page": html("Private", `<p>secret</p>`),
		"/public":       html("Public", `<p>secret</p>`),
	})

	d := crawl(t, newTestEngine(WithRobots("")), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"secret"}}).Results[0]

	assert.Equal(t, 2, d.PagesCrawled)
	assert.Equal(t, 0, s.hitCount("/private/page"))
	assert.Equal(t, 1, s.hitCount("/robots.txt"))
}

func TestRobotsDisallowedSeed(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /\n",
		"/":           html("Root", `<p>x</p>`),
	})

	d := crawl(t, newTestEngine(WithRobots("")), domain.CrawlRequest{URLs: []string{s.URL}, Keywords: []string{"x"}}).Results[0]
	assert.Equal(t, domain.StatusFailed, d.Status)
	assert.Contains(t, d.Error, domain.ReasonDisallowed)
	assert.Equal(t, 0, s.hitCount("/"))
}

func TestMatchesKeepDiscoveryOrder(t *testing.T) {
	t.Parallel()
	s := newSite(t, map[string]string{
		"/":  html("Root", `<p>beta alpha</p><a href="/1">1</a><a href="/2">2</a>`),
		"/1": html("One", `<p>alpha</p>`),
		"/2": html("Two", `<p>beta</p>`),
	})

	d := crawl(t, newTestEngine(WithPageWorkers(2)), domain.CrawlRequest{URLs: []string{s.URL + "/"}, Keywords: []string{"alpha", "beta"}}).Results[0]

	var got []string
	for _, m := range d.Matches {
		got = append(got, strings.TrimPrefix(m.SourceURL, s.URL)+" "+m.Keyword)
	}
	assert.Equal(t, []string{"/ alpha", "/ beta", "/1 alpha", "/2 beta"}, got)
}
