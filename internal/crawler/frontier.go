package crawler

import (
	"net/url"

	"github.com/user/keyword-crawler/pkg/utils"
)

type task struct {
	url   *url.URL
	key   string
	depth int
}

// frontier is a domain's BFS queue together with its visit state. URLs are
// marked visited when enqueued so each one is fetched at most once.
type frontier struct {
	queue   []task
	visited map[string]bool
}

func newFrontier() *frontier {
	return &frontier{visited: make(map[string]bool)}
}

// push enqueues u unless it was seen before. It reports whether u was added.
func (f *frontier) push(u *url.URL, depth int) bool {
	key := utils.NormalizeURL(u)
	if f.visited[key] {
		return false
	}
	f.visited[key] = true
	f.queue = append(f.queue, task{url: u, key: key, depth: depth})
	return true
}

// markVisited records a URL reached without being enqueued, such as the
// target of a redirect.
func (f *frontier) markVisited(u *url.URL) {
	f.visited[utils.NormalizeURL(u)] = true
}

func (f *frontier) seenKey(key string) bool { return f.visited[key] }

// pop removes up to n tasks from the head of the queue.
func (f *frontier) pop(n int) []task {
	n = min(n, len(f.queue))
	batch := make([]task, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	return batch
}

func (f *frontier) len() int { return len(f.queue) }
