// Package collyfetcher implements audit.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	// Timeout bounds each request end to end, redirects included.
	Timeout time.Duration
	// Headers are sent with every request unless the request overrides them.
	Headers http.Header
}

// Fetcher implements audit.Fetcher using the Colly collector. Requests are
// anonymous: cookies are disabled and no credentials are ever attached.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The shared HTTP backend is configured once here;
// per-request collectors are clones that only register callbacks.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.DisableCookies()
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP request. Any HTTP status is returned as a
// response; only transport-level failures produce an error.
func (f *Fetcher) Fetch(ctx context.Context, request audit.FetchRequest) (audit.FetchResponse, error) {
	var (
		result   audit.FetchResponse
		fetchErr error
	)
	method := strings.ToUpper(strings.TrimSpace(request.Method))
	if method == "" {
		method = http.MethodGet
	}
	if err := ctx.Err(); err != nil {
		return audit.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", err)
	}
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, method, request, &fetchErr); err != nil {
		metrics.ObserveFetch(method, 0, time.Since(start))
		return audit.FetchResponse{}, err
	}
	metrics.ObserveFetch(method, result.StatusCode, time.Since(start))
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *audit.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = audit.FetchResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method string,
	request audit.FetchRequest,
	fetchErr *error,
) error {
	headers := f.mergeHeaders(request.Headers)
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, request.URL, nil, nil, headers)
	}()

	select {
	case <-ctx.Done():
		// The request is bound to ctx; wait for it to unwind so callers that
		// bound concurrency never have more requests open than they think.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) mergeHeaders(override http.Header) http.Header {
	out := http.Header{}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			out.Add(key, v)
		}
	}
	for key, values := range override {
		out.Del(key)
		for _, v := range values {
			out.Add(key, v)
		}
	}
	if f.cfg.UserAgent != "" && out.Get("User-Agent") == "" {
		out.Set("User-Agent", f.cfg.UserAgent)
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
