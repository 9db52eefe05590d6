package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/proxy"
)

// ErrHTTPStatus wraps non-2xx responses.
var ErrHTTPStatus = errors.New("unexpected http status")

const (
	defaultFetchTimeout = 10 * time.Second
	defaultRequestDelay = time.Second
	defaultMaxBodySize  = 10 * 1024 * 1024
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FetchSession fetches the URLs of one school, one after another, waiting
// the politeness delay after each request.
type FetchSession interface {
	Fetch(rawURL string) (*Page, error)
}

// Fetcher opens fetch sessions. Sessions are independent, so schools
// scanned concurrently do not share a delay.
type Fetcher interface {
	NewSession(ctx context.Context) (FetchSession, error)
}

// FetcherConfig configures CollyFetcher.
type FetcherConfig struct {
	Timeout     time.Duration
	Delay       time.Duration
	MaxBodySize int
}

// CollyFetcher builds one colly collector per session.
type CollyFetcher struct {
	cfg    FetcherConfig
	agents *proxy.Manager
	logger *zap.Logger
}

func NewCollyFetcher(cfg FetcherConfig, agents *proxy.Manager, logger *zap.Logger) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.Delay < 0 {
		cfg.Delay = defaultRequestDelay
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if agents == nil {
		agents = proxy.NewManager(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollyFetcher{cfg: cfg, agents: agents, logger: logger}
}

func (f *CollyFetcher) NewSession(ctx context.Context) (FetchSession, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.agents.GetUserAgent()),
		colly.MaxBodySize(f.cfg.MaxBodySize),
		colly.ParseHTTPErrorResponse(),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.cfg.Timeout)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       f.cfg.Delay,
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	if f.agents.HasProxies() {
		c.SetProxyFunc(f.agents.ProxyFunc())
	}

	s := &collySession{collector: c}
	c.OnResponse(func(r *colly.Response) {
		s.last = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})
	return s, nil
}

type collySession struct {
	collector *colly.Collector
	last      *Page
}

func (s *collySession) Fetch(rawURL string) (*Page, error) {
	s.last = nil
	if err := s.collector.Visit(rawURL); err != nil {
		return nil, err
	}
	page := s.last
	if page == nil {
		return nil, fmt.Errorf("no response received for %s", rawURL)
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, page.StatusCode)
	}
	return page, nil
}
