package extractor

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides whether a URL belongs to the same site as a seed. Hosts are
// compared by registrable domain, so www.example.com and blog.example.com
// share a scope. IP addresses and single label hosts must match exactly,
// port included.
type Scope struct {
	site  string
	exact bool
}

// NewScope returns the scope of seed.
func NewScope(seed *url.URL) Scope {
	site, exact := siteOf(seed)
	return Scope{site: site, exact: exact}
}

// Contains reports whether u is an http(s) URL inside the scope.
func (s Scope) Contains(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	site, exact := siteOf(u)
	return site != "" && site == s.site && exact == s.exact
}

func siteOf(u *url.URL) (string, bool) {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return strings.ToLower(u.Host), true
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// the host is itself a public suffix
		return host, true
	}
	return site, false
}
