package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/keyword-crawler/internal/domain"
)

type crawlFlags struct {
	keywords     []string
	maxDepth     int
	maxPages     int
	maxTime      int
	noPagination bool
	dateFrom     string
	dateTo       string
	pretty       bool
}

// NewCrawlCmd creates the crawl subcommand.
func NewCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Run a single crawl and print the result as JSON",
		Example: `  crawler crawl https://go.dev -k generics -k iterators --max-pages 5
  crawler crawl blog.example.com,news.example.com -k release --date-from 2024-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, f)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&f.keywords, "keyword", "k", nil, "Keyword to look for (repeatable)")
	flags.IntVar(&f.maxDepth, "max-depth", 0, "Link depth below each seed (default 2)")
	flags.IntVar(&f.maxPages, "max-pages", 0, "Pages per domain (default 10)")
	flags.IntVar(&f.maxTime, "max-time", 0, "Seconds per domain (default 30)")
	flags.BoolVar(&f.noPagination, "no-pagination", false, "Do not follow pagination links")
	flags.StringVar(&f.dateFrom, "date-from", "", "Only count pages dated on or after YYYY-MM-DD")
	flags.StringVar(&f.dateTo, "date-to", "", "Only count pages dated on or before YYYY-MM-DD")
	flags.BoolVar(&f.pretty, "pretty", false, "Indent the JSON output")

	return cmd
}

func (f crawlFlags) request(args []string) domain.CrawlRequest {
	var urls []string
	for _, a := range args {
		urls = append(urls, domain.SplitURLs(a)...)
	}
	req := domain.CrawlRequest{
		URLs:           urls,
		Keywords:       f.keywords,
		MaxDepth:       f.maxDepth,
		MaxPages:       f.maxPages,
		MaxTimeSeconds: f.maxTime,
		DateFrom:       f.dateFrom,
		DateTo:         f.dateTo,
	}
	if f.noPagination {
		follow := false
		req.FollowPagination = &follow
	}
	return req
}

func runCrawl(cmd *cobra.Command, args []string, f crawlFlags) error {
	a, err := newApp(cmd, "stderr")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	engine, err := a.newEngine(nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := engine.Execute(ctx, f.request(args))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if f.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
