package domain

import "time"

// CrawlRequest is the payload accepted by the engine.
type CrawlRequest struct {
	URLs             []string `json:"urls"`
	Keywords         []string `json:"keywords"`
	MaxDepth         int      `json:"max_depth,omitempty"`
	MaxTimeSeconds   int      `json:"max_time_seconds,omitempty"`
	MaxPages         int      `json:"max_pages,omitempty"`
	FollowPagination *bool    `json:"follow_pagination,omitempty"`
	DateFrom         string   `json:"date_from,omitempty"` // YYYY-MM-DD
	DateTo           string   `json:"date_to,omitempty"`   // YYYY-MM-DD
}

// KeywordMatch describes one keyword found on one page.
type KeywordMatch struct {
	Keyword        string  `json:"keyword"`
	Context        string  `json:"context"`
	CleanedText    string  `json:"cleaned_text"`
	Count          int     `json:"count"`
	RelevanceScore float64 `json:"relevance_score"`
	SourceURL      string  `json:"source_url"`
}

// CrawlMetadata is attached to a domain result and describes the page the
// domain's title was taken from.
type CrawlMetadata struct {
	CrawlTimestamp        time.Time  `json:"crawl_timestamp"`
	TotalProcessingTimeMS int64      `json:"total_processing_time_ms"`
	ContentSummary        string     `json:"content_summary,omitempty"`
	LastModified          *time.Time `json:"last_modified,omitempty"`
	PublishedDate         *time.Time `json:"published_date,omitempty"`
	ContentLanguage       string     `json:"content_language,omitempty"`
}

// Domain crawl terminal states.
const (
	StatusCompleted = "completed"
	StatusBudgeted  = "budgeted"
	StatusFailed    = "failed"
)

// Budgets that can stop a domain crawl early.
const (
	BudgetMaxPages = "max_pages"
	BudgetMaxTime  = "max_time"
	BudgetMaxDepth = "max_depth"
)

// DomainResult is the outcome of crawling a single seed.
type DomainResult struct {
	URL          string         `json:"url"`
	Title        string         `json:"title,omitempty"`
	Matches      []KeywordMatch `json:"matches"`
	PagesCrawled int            `json:"pages_crawled"`
	HasMorePages bool           `json:"has_more_pages"`
	Status       string         `json:"status"`
	Budget       string         `json:"budget,omitempty"`
	Metadata     *CrawlMetadata `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// CrawlResult is the response for one crawl request. Results are in the
// same order as the request's URLs.
type CrawlResult struct {
	Results               []DomainResult `json:"results"`
	TotalPagesCrawled     int            `json:"total_pages_crawled"`
	TotalProcessingTimeMS int64          `json:"total_processing_time_ms"`
	CrawlTimestamp        time.Time      `json:"crawl_timestamp"`
}

// MatchCount returns the number of keyword matches across all domains.
func (r *CrawlResult) MatchCount() int {
	n := 0
	for _, d := range r.Results {
		n += len(d.Matches)
	}
	return n
}

// FailedDomains returns the number of domains that ended with an error.
func (r *CrawlResult) FailedDomains() int {
	n := 0
	for _, d := range r.Results {
		if d.Error != "" {
			n++
		}
	}
	return n
}
