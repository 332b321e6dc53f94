// Package listing walks a paginated content listing endpoint.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// Config describes the listing to walk.
type Config struct {
	// StartURL is the listing endpoint, typically base URL plus listing path.
	StartURL string
	// BaseURL anchors relative continuation links.
	BaseURL     string
	ContentType string
	Expand      []string
	// PageLimit is sent as the limit parameter when positive.
	PageLimit int
	// MaxPages stops the walk after that many pages when positive.
	MaxPages int
}

// PageProgress is reported to the observer after every fetched page.
type PageProgress struct {
	Page  int
	URL   string
	Items int
	Total int
}

// Option customizes a Paginator.
type Option func(*Paginator)

// WithObserver registers a callback invoked after each page. It must not block.
func WithObserver(fn func(PageProgress)) Option {
	return func(p *Paginator) {
		p.observer = fn
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Paginator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Paginator follows server-supplied continuation links until the listing is
// exhausted. It keeps one request in flight at a time.
type Paginator struct {
	fetcher  audit.Fetcher
	cfg      Config
	firstURL string
	observer func(PageProgress)
	logger   *zap.Logger
}

// envelope is the subset of a listing response the walk depends on.
type envelope struct {
	Results *[]json.RawMessage `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// New validates cfg and builds a Paginator.
func New(fetcher audit.Fetcher, cfg Config, opts ...Option) (*Paginator, error) {
	if fetcher == nil {
		return nil, errors.New("listing: fetcher is required")
	}
	first, err := firstPageURL(cfg)
	if err != nil {
		return nil, err
	}
	p := &Paginator{
		fetcher:  fetcher,
		cfg:      cfg,
		firstURL: first,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FirstURL returns the URL of the first page, query parameters included.
func (p *Paginator) FirstURL() string {
	return p.firstURL
}

// Page is one fetched listing page.
type Page struct {
	Number int
	URL    string
	Items  []json.RawMessage
}

// Pages yields each listing page in server order. Each call to the returned
// sequence restarts from the first page. A failure is yielded once as the
// final element.
func (p *Paginator) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		next := p.firstURL
		seen := make(map[string]struct{})
		total := 0
		for number := 1; next != ""; number++ {
			if _, dup := seen[next]; dup {
				yield(Page{}, fmt.Errorf("%w: pagination cycle at %s", audit.ErrMalformedResponse, next))
				return
			}
			seen[next] = struct{}{}

			env, err := p.fetchPage(ctx, next)
			if err != nil {
				yield(Page{}, err)
				return
			}
			page := Page{Number: number, URL: next, Items: *env.Results}
			total += len(page.Items)
			p.logger.Debug("listing page fetched",
				zap.Int("page", number),
				zap.Int("items", len(page.Items)),
				zap.Int("total", total),
			)
			if p.observer != nil {
				p.observer(PageProgress{Page: number, URL: next, Items: len(page.Items), Total: total})
			}
			if !yield(page, nil) {
				return
			}

			if p.cfg.MaxPages > 0 && number >= p.cfg.MaxPages {
				if env.Links.Next != "" {
					p.logger.Info("listing page cap reached", zap.Int("max_pages", p.cfg.MaxPages))
				}
				return
			}
			next = p.resolve(env.Links.Next)
		}
	}
}

// Items flattens Pages into the raw items, preserving server order.
func (p *Paginator) Items(ctx context.Context) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for page, err := range p.Pages(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, pageURL string) (envelope, error) {
	resp, err := p.fetcher.Fetch(ctx, audit.FetchRequest{
		URL:     pageURL,
		Method:  http.MethodGet,
		Headers: http.Header{"Accept": []string{"application/json"}},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return envelope{}, fmt.Errorf("listing canceled: %w", ctxErr)
		}
		return envelope{}, audit.ConnectivityFailure(pageURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return envelope{}, &audit.FetchFailure{URL: pageURL, StatusCode: resp.StatusCode}
	}
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: decode %s: %w", audit.ErrMalformedResponse, pageURL, err)
	}
	if env.Results == nil {
		return envelope{}, fmt.Errorf("%w: %s has no results array", audit.ErrMalformedResponse, pageURL)
	}
	return env, nil
}

// resolve turns a continuation link into an absolute URL. Relative links are
// appended to the base URL so context paths such as /portal survive.
func (p *Paginator) resolve(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if u, err := url.Parse(link); err == nil && u.IsAbs() {
		return link
	}
	return audit.JoinURL(p.cfg.BaseURL, link)
}

func firstPageURL(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.StartURL) == "" {
		return "", errors.New("listing: start url is required")
	}
	u, err := url.Parse(cfg.StartURL)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("listing: invalid start url %q", cfg.StartURL)
	}
	q := u.Query()
	if cfg.ContentType != "" {
		q.Set("type", cfg.ContentType)
	}
	if len(cfg.Expand) > 0 {
		q.Set("expand", strings.Join(cfg.Expand, ","))
	}
	if cfg.PageLimit > 0 {
		q.Set("limit", strconv.Itoa(cfg.PageLimit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
