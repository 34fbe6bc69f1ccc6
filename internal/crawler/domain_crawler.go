package crawler

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/extractor"
	"github.com/user/keyword-crawler/internal/matcher"
	"github.com/user/keyword-crawler/pkg/utils"
)

type state int

const (
	statePending state = iota
	stateRunning
	stateCompleted
	stateBudgeted
	stateFailed
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRunning:
		return "running"
	case stateCompleted:
		return domain.StatusCompleted
	case stateBudgeted:
		return domain.StatusBudgeted
	default:
		return domain.StatusFailed
	}
}

// page is the outcome of fetching and processing one task. Exactly one of
// err and content is set.
type page struct {
	task    task
	final   *url.URL
	content *extractor.Content
	links   extractor.Links
	err     error
}

// domainCrawler runs one seed's bounded BFS. All of its state is owned by
// the goroutine calling run; only fetches run concurrently.
type domainCrawler struct {
	e       *Engine
	plan    *domain.CrawlPlan
	matcher *matcher.Matcher
	seed    domain.Seed
	seedKey string
	log     *zap.Logger

	state    state
	budget   string
	scope    extractor.Scope
	frontier *frontier
	robots   robotsPolicy
	limiter  *rate.Limiter
	withheld map[string]bool

	pagesCrawled int
	matches      []domain.KeywordMatch
	title        string
	meta         *extractor.Content
	metaFromSeed bool
	hasMore      bool
}

func (e *Engine) newDomainCrawler(plan *domain.CrawlPlan, m *matcher.Matcher, seed domain.Seed) *domainCrawler {
	return &domainCrawler{
		e:        e,
		plan:     plan,
		matcher:  m,
		seed:     seed,
		log:      e.logger.With(zap.String("seed", seed.Raw)),
		state:    statePending,
		frontier: newFrontier(),
		withheld: make(map[string]bool),
	}
}

func (c *domainCrawler) run(ctx context.Context) domain.DomainResult {
	start := c.e.now()
	result := domain.DomainResult{URL: c.seed.Raw, Matches: []domain.KeywordMatch{}}

	if c.seed.Err != nil {
		return c.fail(result, c.seed.Err)
	}
	result.URL = c.seed.URL.String()

	dctx, cancel := context.WithTimeout(ctx, c.plan.MaxTime)
	defer cancel()

	c.scope = extractor.NewScope(c.seed.URL)
	c.limiter = c.newLimiter()
	if c.e.respectRobots {
		if tf, ok := c.e.fetcher.(TextFetcher); ok {
			c.robots = loadRobots(dctx, tf, c.seed.URL, c.e.robotsAgent, c.fetchTimeout(dctx), c.log)
			if d := c.robots.crawlDelay(); d > 0 && rate.Every(d) < c.limiter.Limit() {
				c.limiter.SetLimit(rate.Every(d))
				c.limiter.SetBurst(1)
			}
		}
		if !c.robots.allowed(c.seed.URL) {
			return c.fail(result, &domain.FetchError{URL: c.seed.URL.String(), Reason: domain.ReasonDisallowed})
		}
	}

	c.seedKey = utils.NormalizeURL(c.seed.URL)
	c.frontier.push(c.seed.URL, 0)
	c.state = stateRunning

	if err := c.crawl(dctx); err != nil {
		return c.fail(result, err)
	}

	result.PagesCrawled = c.pagesCrawled
	result.Matches = append(result.Matches, c.matches...)
	result.HasMorePages = c.hasMore
	result.Status = c.state.String()
	result.Budget = c.budget
	result.Title = c.title
	if c.meta != nil {
		result.Metadata = c.metadata(start)
	}

	c.e.metrics.IncDomain(result.Status)
	c.log.Info("domain crawl finished",
		zap.String("status", result.Status),
		zap.String("budget", result.Budget),
		zap.Int("pages", result.PagesCrawled),
		zap.Int("matches", len(result.Matches)),
		zap.Bool("has_more", result.HasMorePages),
		zap.Duration("elapsed", c.e.now().Sub(start)))
	return result
}

// crawl drives the BFS until a budget triggers or the frontier runs dry. It
// returns a non-nil error only when the seed itself fails.
func (c *domainCrawler) crawl(ctx context.Context) error {
	for {
		if c.pagesCrawled >= c.plan.MaxPages {
			if c.frontier.len() == 0 && !c.hasWithheld() {
				c.finish(stateCompleted, "", false)
			} else {
				c.finish(stateBudgeted, domain.BudgetMaxPages, true)
			}
			return nil
		}
		if expired(ctx) {
			c.finish(stateBudgeted, domain.BudgetMaxTime, true)
			return nil
		}
		if c.frontier.len() == 0 {
			if c.hasWithheld() {
				c.finish(stateBudgeted, domain.BudgetMaxDepth, true)
			} else {
				c.finish(stateCompleted, "", false)
			}
			return nil
		}

		batch := c.frontier.pop(min(c.e.pageWorkers, c.plan.MaxPages-c.pagesCrawled))
		pages, complete := c.fetchWave(ctx, batch)
		for _, p := range pages {
			if p == nil {
				continue
			}
			if err := c.handle(ctx, p); err != nil {
				return err
			}
		}
		if !complete {
			c.finish(stateBudgeted, domain.BudgetMaxTime, true)
			return nil
		}
	}
}

func (c *domainCrawler) finish(s state, budget string, hasMore bool) {
	c.state = s
	c.budget = budget
	c.hasMore = hasMore
}

// fetchWave fetches batch concurrently and returns the pages in batch
// order. When ctx ends first the fetches still in flight are abandoned: their
// slots are nil and complete is false.
func (c *domainCrawler) fetchWave(ctx context.Context, batch []task) (pages []*page, complete bool) {
	type slot struct {
		i int
		p *page
	}
	// buffered so abandoned fetches can still finish and exit
	done := make(chan slot, len(batch))
	scope := c.scope
	for i, t := range batch {
		go func() { done <- slot{i, c.process(ctx, t, scope)} }()
	}

	pages = make([]*page, len(batch))
	for range batch {
		select {
		case s := <-done:
			pages[s.i] = s.p
		case <-ctx.Done():
			return pages, false
		}
	}
	return pages, true
}

// process fetches and parses one task. It runs on its own goroutine and
// touches no crawler state.
func (c *domainCrawler) process(ctx context.Context, t task, scope extractor.Scope) *page {
	p := &page{task: t}
	if err := c.limiter.Wait(ctx); err != nil {
		p.err = &domain.FetchError{URL: t.url.String(), Reason: domain.ReasonTimeout, Err: err}
		return p
	}
	resp, err := c.e.fetcher.Fetch(ctx, t.url.String(), c.fetchTimeout(ctx))
	if err != nil {
		p.err = err
		return p
	}
	p.final = resp.URL
	if p.final == nil {
		p.final = t.url
	}

	doc, err := extractor.Parse(resp.Body, p.final)
	if err != nil {
		p.err = err
		return p
	}
	p.content = c.e.extractor.Extract(doc)

	if t.key == c.seedKey {
		// a seed that redirects takes the crawl to its final site
		scope = extractor.NewScope(p.final)
	}
	p.links = c.e.links.Discover(doc, scope)
	return p
}

// handle folds one page into the crawl state.
func (c *domainCrawler) handle(ctx context.Context, p *page) error {
	isSeed := p.task.key == c.seedKey
	if p.err != nil {
		reason := domain.Reason(p.err)
		c.e.metrics.IncPage("failed")
		c.e.metrics.IncFetchError(reasonLabel(p.err))
		if isSeed {
			if expired(ctx) {
				// the seed ran out of time rather than failing
				return nil
			}
			return &domain.DomainError{Seed: c.seed.URL.String(), Err: p.err}
		}
		c.log.Debug("page skipped", zap.String("url", p.task.url.String()), zap.String("reason", reason))
		return nil
	}

	if finalKey := utils.NormalizeURL(p.final); finalKey != p.task.key {
		if c.frontier.seenKey(finalKey) {
			c.log.Debug("redirect to a known page", zap.String("url", p.task.url.String()), zap.String("final", p.final.String()))
			return nil
		}
		c.frontier.markVisited(p.final)
	}
	if isSeed {
		c.scope = extractor.NewScope(p.final)
	}

	if c.plan.Dates.Includes(p.content.PublishedDate, p.content.LastModified) {
		c.count(p, isSeed)
	} else {
		c.e.metrics.IncPage("filtered")
		c.log.Debug("page outside date range", zap.String("url", p.final.String()))
	}
	c.enqueue(p)
	return nil
}

func (c *domainCrawler) count(p *page, isSeed bool) {
	c.pagesCrawled++
	c.e.metrics.IncPage("counted")
	c.matches = append(c.matches, c.matcher.Match(p.content.CleanedText, p.content.Title, p.final.String())...)

	if c.meta == nil || (isSeed && !c.metaFromSeed) {
		c.meta = p.content
		c.metaFromSeed = isSeed
		c.title = p.content.Title
	}
}

// enqueue adds a page's links to the frontier. Pagination links stay at the
// page's depth and are dropped entirely when pagination is off; other links
// go one level deeper while that is within max_depth.
func (c *domainCrawler) enqueue(p *page) {
	for _, u := range p.links.Links {
		if !c.robots.allowed(u) {
			continue
		}
		if p.links.IsPagination(u) {
			if c.plan.FollowPagination {
				c.frontier.push(u, p.task.depth)
			}
			continue
		}
		next := p.task.depth + 1
		if next > c.plan.MaxDepth {
			if key := utils.NormalizeURL(u); !c.frontier.seenKey(key) {
				c.withheld[key] = true
			}
			continue
		}
		c.frontier.push(u, next)
	}
}

// hasWithheld reports whether a link was skipped for depth and never
// reached another way.
func (c *domainCrawler) hasWithheld() bool {
	for key := range c.withheld {
		if !c.frontier.seenKey(key) {
			return true
		}
	}
	return false
}

func (c *domainCrawler) fail(result domain.DomainResult, err error) domain.DomainResult {
	c.state = stateFailed
	derr := &domain.DomainError{Seed: c.seed.Raw, Err: err}
	var de *domain.DomainError
	if errors.As(err, &de) {
		derr = de
	}
	result.Status = c.state.String()
	result.Error = derr.Error()
	result.PagesCrawled = 0
	result.HasMorePages = false

	c.e.metrics.IncDomain(result.Status)
	c.log.Warn("domain crawl failed", zap.Error(derr))
	return result
}

func (c *domainCrawler) metadata(start time.Time) *domain.CrawlMetadata {
	md := &domain.CrawlMetadata{
		CrawlTimestamp:        start.UTC(),
		TotalProcessingTimeMS: c.e.now().Sub(start).Milliseconds(),
		ContentSummary:        c.meta.Summary(),
		PublishedDate:         c.meta.PublishedDate,
		LastModified:          c.meta.LastModified,
	}
	if c.e.language != nil {
		md.ContentLanguage = c.e.language.Detect(c.meta.CleanedText)
	}
	return md
}

func (c *domainCrawler) newLimiter() *rate.Limiter {
	if c.e.requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, c.e.pageWorkers)
	}
	return rate.NewLimiter(rate.Limit(c.e.requestsPerSecond), c.e.pageWorkers)
}

// fetchTimeout is the per-request cap shortened to the time the domain has
// left.
func (c *domainCrawler) fetchTimeout(ctx context.Context) time.Duration {
	timeout := c.e.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return max(timeout, time.Millisecond)
}

// expired reports whether ctx is done or past its deadline. A fetch whose
// own timer fired first can finish a moment before ctx notices.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func reasonLabel(err error) string {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return domain.Reason(err)
}
