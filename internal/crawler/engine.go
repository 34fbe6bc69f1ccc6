package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/extractor"
	"github.com/user/keyword-crawler/internal/fetcher"
	"github.com/user/keyword-crawler/internal/matcher"
	"github.com/user/keyword-crawler/internal/monitoring"
)

const (
	DefaultMaxDomainWorkers = 8
	DefaultPageWorkers      = 4
	DefaultRequestTimeout   = 15 * time.Second
	defaultRobotsAgent      = "keyword-crawler"
)

// PageFetcher retrieves a single HTML page. Failures are reported as
// *domain.FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*fetcher.Response, error)
}

// Emitter receives every finished result. Emit must not block.
type Emitter interface {
	Emit(result *domain.CrawlResult)
}

// Engine executes crawl requests.
type Engine struct {
	fetcher   PageFetcher
	extractor *extractor.Extractor
	links     *extractor.LinkDiscoverer
	language  extractor.LanguageDetector
	emitter   Emitter
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	maxDomainWorkers  int
	pageWorkers       int
	requestsPerSecond float64
	requestTimeout    time.Duration
	respectRobots     bool
	robotsAgent       string
	now               func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *monitoring.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithEmitter hands every result to em after it is assembled.
func WithEmitter(em Emitter) Option { return func(e *Engine) { e.emitter = em } }

// WithExtractor replaces the content extractor, e.g. to plug in another
// DateExtractor.
func WithExtractor(x *extractor.Extractor) Option { return func(e *Engine) { e.extractor = x } }

// WithLinkDiscoverer replaces the link discoverer, e.g. to plug in another
// PaginationClassifier.
func WithLinkDiscoverer(ld *extractor.LinkDiscoverer) Option {
	return func(e *Engine) { e.links = ld }
}

// WithLanguageDetector fills metadata content_language. Without it the field
// is left empty.
func WithLanguageDetector(d extractor.LanguageDetector) Option {
	return func(e *Engine) { e.language = d }
}

// WithMaxDomainWorkers caps how many domains are crawled at once.
func WithMaxDomainWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDomainWorkers = n
		}
	}
}

// WithPageWorkers caps concurrent fetches within one domain.
func WithPageWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageWorkers = n
		}
	}
}

// WithRequestsPerSecond paces fetches per domain. Zero disables pacing.
func WithRequestsPerSecond(rps float64) Option {
	return func(e *Engine) { e.requestsPerSecond = rps }
}

// WithRequestTimeout caps a single fetch. The domain's remaining budget may
// shorten it further.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithRobots makes the crawler honour robots.txt for the given user agent.
// The fetcher must implement TextFetcher.
func WithRobots(agent string) Option {
	return func(e *Engine) {
		e.respectRobots = true
		if agent != "" {
			e.robotsAgent = agent
		}
	}
}

func withClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(f PageFetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:          f,
		logger:           zap.NewNop(),
		maxDomainWorkers: DefaultMaxDomainWorkers,
		pageWorkers:      DefaultPageWorkers,
		requestTimeout:   DefaultRequestTimeout,
		robotsAgent:      defaultRobotsAgent,
		now:              time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.extractor == nil {
		e.extractor = extractor.New(nil)
	}
	if e.links == nil {
		e.links = extractor.NewLinkDiscoverer(nil)
	}
	return e
}

// Execute crawls every seed of req and returns one DomainResult per seed in
// request order. Malformed requests fail with an *domain.EngineError before
// any I/O. A domain failing never fails the call; cancellation of ctx does,
// and no partial result is returned in that case.
func (e *Engine) Execute(ctx context.Context, req domain.CrawlRequest) (*domain.CrawlResult, error) {
	start := e.now()
	plan, err := req.Plan()
	if err != nil {
		return nil, err
	}
	m := matcher.New(plan.Keywords)

	e.logger.Info("crawl started",
		zap.Int("seeds", len(plan.Seeds)),
		zap.Strings("keywords", plan.Keywords),
		zap.Int("max_depth", plan.MaxDepth),
		zap.Int("max_pages", plan.MaxPages),
		zap.Duration("max_time", plan.MaxTime))

	results := make([]domain.DomainResult, len(plan.Seeds))
	var g errgroup.Group
	g.SetLimit(min(len(plan.Seeds), e.maxDomainWorkers))
	for i, seed := range plan.Seeds {
		g.Go(func() error {
			dc := e.newDomainCrawler(plan, m, seed)
			results[i] = dc.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		e.logger.Warn("crawl aborted", zap.Error(err))
		return nil, fmt.Errorf("crawl aborted: %w", err)
	}

	elapsed := e.now().Sub(start)
	result := &domain.CrawlResult{
		Results:               results,
		TotalProcessingTimeMS: elapsed.Milliseconds(),
		CrawlTimestamp:        start.UTC(),
	}
	for _, r := range results {
		result.TotalPagesCrawled += r.PagesCrawled
	}

	e.metrics.ObserveCrawl(elapsed)
	e.metrics.AddMatches(result.MatchCount())
	e.logger.Info("crawl finished",
		zap.Int("pages", result.TotalPagesCrawled),
		zap.Int("matches", result.MatchCount()),
		zap.Int("failed_domains", result.FailedDomains()),
		zap.Duration("elapsed", elapsed))

	if e.emitter != nil {
		e.emitter.Emit(result)
	}
	return result, nil
}
