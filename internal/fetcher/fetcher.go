package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/proxy"
)

const (
	DefaultMaxRedirects = 5
	DefaultMaxBodyBytes = 5 << 20
	DefaultTimeout      = 15 * time.Second
)

var (
	errTooManyRedirects = errors.New("stopped after too many redirects")
	errRedirectLoop     = errors.New("redirect loop detected")
)

// Response is a successfully fetched HTML page. Body is UTF-8.
type Response struct {
	URL         *url.URL // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
}

// Options configures a Fetcher. Zero values use the package defaults.
type Options struct {
	MaxRedirects int
	MaxBodyBytes int64
	Proxies      *proxy.Manager
	Transport    http.RoundTripper
	Logger       *zap.Logger
}

// Fetcher retrieves single pages over HTTP.
type Fetcher struct {
	client       *http.Client
	proxies      *proxy.Manager
	maxBodyBytes int64
	logger       *zap.Logger
}

func New(opts Options) *Fetcher {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Proxies == nil {
		opts.Proxies, _ = proxy.NewManager(nil, nil)
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 opts.Proxies.Proxy,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			next := req.URL.String()
			for _, prev := range via {
				if prev.URL.String() == next {
					return errRedirectLoop
				}
			}
			return nil
		},
	}

	return &Fetcher{
		client:       client,
		proxies:      opts.Proxies,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
	}
}

// Fetch retrieves rawURL as HTML. Every failure is a *domain.FetchError.
// The timeout bounds the whole exchange including the body read.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.do(ctx, rawURL, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &domain.FetchError{URL: rawURL, Reason: domain.ReasonHTTPStatus, StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !isHTML(ct) {
		return nil, &domain.FetchError{
			URL:    rawURL,
			Reason: domain.ReasonUnsupportedContentType,
			Err:    fmt.Errorf("content type %q", ct),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, classify(rawURL, err)
	}
	if ct == "" {
		ct = http.DetectContentType(raw)
		if !isHTML(ct) {
			return nil, &domain.FetchError{
				URL:    rawURL,
				Reason: domain.ReasonUnsupportedContentType,
				Err:    fmt.Errorf("sniffed content type %q", ct),
			}
		}
	}

	body, err := decode(raw, ct)
	if err != nil {
		f.logger.Debug("charset decoding failed, using raw body", zap.String("url", rawURL), zap.Error(err))
		body = raw
	}

	return &Response{
		URL:         resp.Request.URL,
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		Body:        body,
		FetchedAt:   start,
		Duration:    time.Since(start),
	}, nil
}

// FetchText retrieves a small plain resource such as robots.txt, returning
// the status code with at most limit bytes of body.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string, limit int64) (int, []byte, error) {
	resp, err := f.do(ctx, rawURL, "text/plain,*/*;q=0.5")
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return resp.StatusCode, nil, classify(rawURL, err)
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) do(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Reason: domain.ReasonInvalidURL, Err: err}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, &domain.FetchError{URL: rawURL, Reason: domain.ReasonInvalidURL, Err: fmt.Errorf("unsupported scheme %q", req.URL.Scheme)}
	}
	req.Header.Set("User-Agent", f.proxies.GetUserAgent())
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	return resp, nil
}

func classify(rawURL string, err error) *domain.FetchError {
	reason := domain.ReasonNetworkError
	var netErr net.Error
	switch {
	case errors.Is(err, errTooManyRedirects), errors.Is(err, errRedirectLoop):
		reason = domain.ReasonTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		reason = domain.ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = domain.ReasonTimeout
	}
	return &domain.FetchError{URL: rawURL, Reason: reason, Err: err}
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// decode converts body to UTF-8 using the header charset, a <meta> charset
// declaration or content sniffing, in that order.
func decode(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
