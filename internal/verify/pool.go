// Package verify re-checks sampled report URLs with a bounded pool of
// anonymous requests.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/clock/system"
	uuidgen "github.com/JakeFAU/public-page-audit/internal/id/uuid"
	"github.com/JakeFAU/public-page-audit/internal/progress"
)

const defaultTimeout = 10 * time.Second

// Config bounds the pool.
type Config struct {
	// Concurrency is the maximum number of checks in flight.
	Concurrency int
	// Method is HEAD or GET; empty means HEAD.
	Method string
	// Timeout bounds each check; a check that exceeds it is a connection error.
	Timeout time.Duration
}

// Limiter paces checks; *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Run is the outcome of one verification batch.
type Run struct {
	ID         uuid.UUID
	Results    []audit.SampleResult
	Summary    audit.Summary
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pool issues reachability checks with at most Concurrency in flight.
type Pool struct {
	fetcher audit.Fetcher
	cfg     Config
	limiter Limiter
	emitter progress.Emitter
	clock   audit.Clock
	ids     audit.IDGenerator
	logger  *zap.Logger
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLimiter paces checks per host. The wait happens inside the concurrency
// slot so paced checks still count against the bound.
func WithLimiter(l Limiter) Option {
	return func(p *Pool) {
		p.limiter = l
	}
}

// WithEmitter routes progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pool) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithClock overrides the time source.
func WithClock(c audit.Clock) Option {
	return func(p *Pool) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g audit.IDGenerator) Option {
	return func(p *Pool) {
		if g != nil {
			p.ids = g
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Pool. It fails only when the pool cannot be constructed.
func New(fetcher audit.Fetcher, cfg Config, opts ...Option) (*Pool, error) {
	if fetcher == nil {
		return nil, errors.New("verify: fetcher is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("verify: concurrency must be > 0, got %d", cfg.Concurrency)
	}
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	switch cfg.Method {
	case "":
		cfg.Method = http.MethodHead
	case http.MethodHead, http.MethodGet:
	default:
		return nil, fmt.Errorf("verify: unsupported method %q", cfg.Method)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	p := &Pool{
		fetcher: fetcher,
		cfg:     cfg,
		emitter: progress.Discard,
		clock:   system.New(),
		ids:     uuidgen.New(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Verify checks every entry and returns one result per entry, in input order.
func (p *Pool) Verify(ctx context.Context, entries []audit.ReportEntry) []audit.SampleResult {
	return p.Run(ctx, entries).Results
}

// Run checks every entry and summarizes the batch. Individual failures become
// outcomes; Run itself never fails.
func (p *Pool) Run(ctx context.Context, entries []audit.ReportEntry) Run {
	runID, err := p.ids.NewRawID()
	if err != nil {
		p.logger.Warn("run id unavailable, using random id", zap.Error(err))
		runID = uuid.New()
	}
	started := p.clock.Now()
	p.emit(progress.Event{RunID: runID, Stage: progress.StageVerifyStart, Total: len(entries)})
	p.logger.Info("verification started",
		zap.String("run_id", runID.String()),
		zap.Int("checks", len(entries)),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.String("method", p.cfg.Method),
	)

	results := make([]audit.SampleResult, len(entries))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			res := p.check(ctx, entry)
			results[i] = res
			evt := progress.Event{
				RunID:   runID,
				Stage:   progress.StageCheckDone,
				URL:     res.URL,
				Outcome: res.Outcome,
				Dur:     res.Duration,
			}
			if res.StatusCode != nil {
				evt.Status = *res.StatusCode
			}
			p.emit(evt)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	summary := Summarize(results)
	finished := p.clock.Now()
	p.emit(progress.Event{
		RunID: runID,
		Stage: progress.StageVerifyDone,
		Total: summary.Total,
		Dur:   finished.Sub(started),
		Note:  fmt.Sprintf("%d passed, %d failed", summary.Passed(), summary.Failed()),
	})
	p.logger.Info("verification finished",
		zap.String("run_id", runID.String()),
		zap.Int("passed", summary.Passed()),
		zap.Int("failed", summary.Failed()),
	)
	return Run{
		ID:         runID,
		Results:    results,
		Summary:    summary,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

func (p *Pool) check(parent context.Context, entry audit.ReportEntry) audit.SampleResult {
	res := audit.SampleResult{URL: entry.URL, Title: entry.Title}
	if err := parent.Err(); err != nil {
		// Canceled runs record the remaining entries without touching the network.
		res.Outcome = audit.OutcomeConnectionError
		res.Err = err.Error()
		return res
	}

	ctx, cancel := context.WithTimeout(parent, p.cfg.Timeout)
	defer cancel()
	start := time.Now()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, entry.URL); err != nil {
			res.Outcome = audit.OutcomeConnectionError
			res.Err = err.Error()
			res.Duration = time.Since(start)
			return res
		}
	}
	resp, err := p.fetcher.Fetch(ctx, audit.FetchRequest{URL: entry.URL, Method: p.cfg.Method})
	res.Duration = time.Since(start)
	if err != nil {
		res.Outcome = audit.OutcomeConnectionError
		res.Err = err.Error()
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			res.Err = fmt.Sprintf("timed out after %s", p.cfg.Timeout)
		}
		p.logger.Debug("check failed", zap.String("url", entry.URL), zap.Error(err))
		return res
	}
	code := resp.StatusCode
	res.StatusCode = &code
	res.Outcome = audit.OutcomeForStatus(code)
	if res.Outcome != audit.OutcomeReachable {
		res.Err = fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
	}
	return res
}

func (p *Pool) emit(evt progress.Event) {
	evt.TS = p.clock.Now()
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	p.emitter.Emit(evt)
}

// Summarize counts results by outcome and collects the failures in input order.
func Summarize(results []audit.SampleResult) audit.Summary {
	s := audit.Summary{
		Total:  len(results),
		Counts: make(map[audit.Outcome]int, len(audit.Outcomes)),
	}
	for _, r := range results {
		s.Counts[r.Outcome]++
		if !r.Passed() {
			s.Failures = append(s.Failures, r)
		}
	}
	return s
}
