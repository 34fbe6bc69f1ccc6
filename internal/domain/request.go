package domain

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Request defaults.
const (
	DefaultMaxDepth       = 2
	DefaultMaxTimeSeconds = 30
	DefaultMaxPages       = 10

	dateLayout = "2006-01-02"
)

// DateRange is an inclusive calendar date window. A nil bound is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// IsZero reports whether the range filters nothing.
func (r DateRange) IsZero() bool { return r.From == nil && r.To == nil }

// Includes reports whether a page carrying the given dates belongs in the
// range. A page is included when any of its known dates falls inside the
// window; a page without any date is never excluded.
func (r DateRange) Includes(dates ...*time.Time) bool {
	if r.IsZero() {
		return true
	}
	known := 0
	for _, d := range dates {
		if d == nil {
			continue
		}
		known++
		day := calendarDay(*d)
		if r.From != nil && day.Before(*r.From) {
			continue
		}
		if r.To != nil && day.After(*r.To) {
			continue
		}
		return true
	}
	return known == 0
}

// calendarDay keeps the date as seen in the timestamp's own offset.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Seed is one entry of the request's URL list after parsing.
type Seed struct {
	Raw string
	URL *url.URL
	Err error
}

// CrawlPlan is a validated request with defaults applied.
type CrawlPlan struct {
	Seeds            []Seed
	Keywords         []string
	MaxDepth         int
	MaxPages         int
	MaxTime          time.Duration
	FollowPagination bool
	Dates            DateRange
}

// Plan validates the request and applies defaults. Every error it returns is
// an *EngineError.
func (r CrawlRequest) Plan() (*CrawlPlan, error) {
	if len(r.URLs) == 0 {
		return nil, &EngineError{Field: "urls", Message: "at least one URL is required"}
	}
	keywords := NormalizeKeywords(r.Keywords)
	if len(keywords) == 0 {
		return nil, &EngineError{Field: "keywords", Message: "at least one non-empty keyword is required"}
	}

	maxDepth, err := positiveOrDefault("max_depth", r.MaxDepth, DefaultMaxDepth)
	if err != nil {
		return nil, err
	}
	maxPages, err := positiveOrDefault("max_pages", r.MaxPages, DefaultMaxPages)
	if err != nil {
		return nil, err
	}
	maxTime, err := positiveOrDefault("max_time_seconds", r.MaxTimeSeconds, DefaultMaxTimeSeconds)
	if err != nil {
		return nil, err
	}

	dates, err := parseDateRange(r.DateFrom, r.DateTo)
	if err != nil {
		return nil, err
	}

	follow := true
	if r.FollowPagination != nil {
		follow = *r.FollowPagination
	}

	seeds := make([]Seed, len(r.URLs))
	for i, raw := range r.URLs {
		u, err := ParseSeed(raw)
		seeds[i] = Seed{Raw: raw, URL: u, Err: err}
	}

	return &CrawlPlan{
		Seeds:            seeds,
		Keywords:         keywords,
		MaxDepth:         maxDepth,
		MaxPages:         maxPages,
		MaxTime:          time.Duration(maxTime) * time.Second,
		FollowPagination: follow,
		Dates:            dates,
	}, nil
}

func positiveOrDefault(field string, v, def int) (int, error) {
	switch {
	case v < 0:
		return 0, &EngineError{Field: field, Message: "must be at least 1"}
	case v == 0:
		return def, nil
	default:
		return v, nil
	}
}

func parseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	if s := strings.TrimSpace(from); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return r, &EngineError{Field: "date_from", Message: "expected YYYY-MM-DD, got " + s}
		}
		r.From = &t
	}
	if s := strings.TrimSpace(to); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return r, &EngineError{Field: "date_to", Message: "expected YYYY-MM-DD, got " + s}
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return r, &EngineError{Field: "date_from", Message: "date_from cannot be after date_to"}
	}
	return r, nil
}

// NormalizeKeywords trims keywords, converts them to NFC, drops blanks and
// removes case-insensitive duplicates, keeping the first spelling seen.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = norm.NFC.String(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

var errNotHTTP = errors.New("seed must be an absolute http or https URL")

// ParseSeed turns user input into an absolute http(s) URL. Backticks are
// stripped and a missing scheme defaults to https.
func ParseSeed(raw string) (*url.URL, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "`", ""))
	if s == "" {
		return nil, &FetchError{URL: raw, Reason: ReasonInvalidURL, Err: errors.New("empty URL")}
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, &FetchError{URL: raw, Reason: ReasonInvalidURL, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, &FetchError{URL: raw, Reason: ReasonInvalidURL, Err: errNotHTTP}
	}
	u.Fragment = ""
	return u, nil
}

// SplitURLs splits the comma separated form used by older clients.
func SplitURLs(s string) []string {
	var out []string
	for _, part := range strings.Split(strings.ReplaceAll(s, "`", ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
