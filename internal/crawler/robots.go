package crawler

import (
	"context"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsMaxBytes = 512 << 10

// TextFetcher retrieves small plain-text resources. Fetchers that implement
// it enable robots.txt support.
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string, limit int64) (int, []byte, error)
}

// robotsPolicy answers whether a path may be crawled. The zero value allows
// everything.
type robotsPolicy struct {
	group *robotstxt.Group
}

func (p robotsPolicy) allowed(u *url.URL) bool {
	if p.group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return p.group.Test(path)
}

func (p robotsPolicy) crawlDelay() time.Duration {
	if p.group == nil {
		return 0
	}
	return p.group.CrawlDelay
}

// loadRobots fetches robots.txt for the seed's host. Any failure to fetch
// or parse it allows everything.
func loadRobots(ctx context.Context, tf TextFetcher, seed *url.URL, agent string, timeout time.Duration, log *zap.Logger) robotsPolicy {
	robotsURL := &url.URL{Scheme: seed.Scheme, Host: seed.Host, Path: "/robots.txt"}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, body, err := tf.FetchText(ctx, robotsURL.String(), robotsMaxBytes)
	if err != nil {
		log.Debug("robots.txt unavailable", zap.String("url", robotsURL.String()), zap.Error(err))
		return robotsPolicy{}
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		log.Debug("robots.txt unparsable", zap.String("url", robotsURL.String()), zap.Error(err))
		return robotsPolicy{}
	}
	return robotsPolicy{group: data.FindGroup(agent)}
}
