package extractor

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlStrings(us []*url.URL) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.String()
	}
	return out
}

func TestDiscoverLinks(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "https://www.example.com/blog/post", `<html><body>
<a href="other">relative</a>
<a href="/about#team">about</a>
<a href="#top">fragment only</a>
<a href="mailto:me@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="tel:+123">call</a>
<a href="https://blog.example.com/x">subdomain</a>
<a href="https://elsewhere.org/y">cross domain</a>
<a href="/files/report.pdf">pdf</a>
<a href="/about">duplicate</a>
<a href="  ">blank</a>
</body></html>`)

	seed, _ := url.Parse("https://example.com/")
	links := NewLinkDiscoverer(nil).Discover(doc, NewScope(seed))

	assert.Equal(t, []string{
		"https://www.example.com/blog/other",
		"https://www.example.com/about",
		"https://blog.example.com/x",
	}, urlStrings(links.Links))
	assert.Empty(t, links.Pagination)
}

func TestDiscoverHonorsBaseHref(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "https://example.com/a/b", `<html><head><base href="/docs/"></head>
<body><a href="intro">intro</a></body></html>`)

	seed, _ := url.Parse("https://example.com/")
	links := NewLinkDiscoverer(nil).Discover(doc, NewScope(seed))
	assert.Equal(t, []string{"https://example.com/docs/intro"}, urlStrings(links.Links))
}

func TestDiscoverPagination(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "https://example.com/list", `<html><head>
<link rel="next" href="/list?page=2">
</head><body>
<a href="/article-1">Article</a>
<a href="/list?page=2" rel="next">Next</a>
<ul class="pagination"><li><a href="/list?page=3">3</a></li></ul>
<a class="next-link" href="/list/more">older</a>
<a href="/archive">»</a>
</body></html>`)

	seed, _ := url.Parse("https://example.com/")
	links := NewLinkDiscoverer(nil).Discover(doc, NewScope(seed))

	assert.Equal(t, []string{
		"https://example.com/article-1",
		"https://example.com/list?page=2",
		"https://example.com/list?page=3",
		"https://example.com/list/more",
		"https://example.com/archive",
	}, urlStrings(links.Links))
	assert.Equal(t, []string{
		"https://example.com/list?page=2",
		"https://example.com/list?page=3",
		"https://example.com/list/more",
		"https://example.com/archive",
	}, urlStrings(links.Pagination))

	for _, p := range links.Pagination {
		assert.Contains(t, urlStrings(links.Links), p.String(), "pagination must be a subset of links")
	}
	page2, _ := url.Parse("https://example.com/list?page=2#x")
	assert.True(t, links.IsPagination(page2))
	article, _ := url.Parse("https://example.com/article-1")
	assert.False(t, links.IsPagination(article))
}

func TestScope(t *testing.T) {
	t.Parallel()
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}

	tests := []struct {
		seed string
		link string
		want bool
	}{
		{"https://example.com", "https://www.example.com/a", true},
		{"https://news.example.co.uk", "http://example.co.uk/", true},
		{"https://example.co.uk", "https://other.co.uk/", false},
		{"https://example.com", "ftp://example.com/", false},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080/x", true},
		{"http://127.0.0.1:8080", "http://127.0.0.1:9090/x", false},
		{"http://localhost:3000", "http://localhost:3000/a", true},
		{"https://foo.github.io", "https://bar.github.io/", false},
	}
	for _, tt := range tests {
		t.Run(tt.seed+" "+tt.link, func(t *testing.T) {
			assert.Equal(t, tt.want, NewScope(parse(tt.seed)).Contains(parse(tt.link)))
		})
	}
}
