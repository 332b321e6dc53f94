package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/policy/ratelimit"
	"github.com/JakeFAU/public-page-audit/internal/report"
	"github.com/JakeFAU/public-page-audit/internal/sample"
	"github.com/JakeFAU/public-page-audit/internal/verify"
)

var errNoEntries = errors.New("report contains no page urls")

// VerifyReport is everything the verify command prints.
type VerifyReport struct {
	ReportLocation string
	Loaded         int
	Run            verify.Run
}

// Verify loads the report, samples it, and re-checks the sample anonymously.
// Individual check failures are outcomes in the returned run, not errors.
func (a *App) Verify(ctx context.Context) (VerifyReport, error) {
	cfg := a.cfg
	store, loc, release, err := a.open(ctx, cfg.Report.Location)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("open report: %w", err)
	}
	defer release()
	rc, err := store.GetObject(ctx, loc.Object)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("open report: %w", err)
	}
	entries, err := report.Read(rc, a.logger.Named("report"))
	_ = rc.Close()
	if err != nil {
		return VerifyReport{}, fmt.Errorf("load report %s: %w", loc, err)
	}
	if len(entries) == 0 {
		return VerifyReport{}, fmt.Errorf("load report %s: %w", loc, errNoEntries)
	}

	sampled, err := sample.Sample(entries, cfg.Verify.SampleRate, cfg.Verify.Seed)
	if err != nil {
		return VerifyReport{}, err
	}
	a.logger.Info("sample selected",
		zap.Int("loaded", len(entries)),
		zap.Int("sampled", len(sampled)),
		zap.Float64("rate", cfg.Verify.SampleRate),
		zap.Uint64("seed", cfg.Verify.Seed),
	)

	opts := []verify.Option{
		verify.WithEmitter(a.hub),
		verify.WithLogger(a.logger.Named("verify")),
	}
	if cfg.Verify.RequestsPerSecond > 0 {
		opts = append(opts, verify.WithLimiter(ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Verify.RequestsPerSecond,
			Burst:             cfg.Verify.Burst,
		})))
	}
	pool, err := verify.New(a.fetcher(cfg.Verify.Timeout), verify.Config{
		Concurrency: cfg.Verify.Concurrency,
		Method:      cfg.Verify.Method,
		Timeout:     cfg.Verify.Timeout,
	}, opts...)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("init verifier: %w", err)
	}
	run := pool.Run(ctx, sampled)

	a.notify(ctx, verifyNotice(loc.String(), len(entries), run))
	return VerifyReport{
		ReportLocation: loc.String(),
		Loaded:         len(entries),
		Run:            run,
	}, nil
}

func verifyNotice(location string, loaded int, run verify.Run) audit.VerifyNotice {
	outcomes := make(map[string]int, len(run.Summary.Counts))
	for outcome, n := range run.Summary.Counts {
		outcomes[string(outcome)] = n
	}
	failed := make([]string, 0, len(run.Summary.Failures))
	for _, f := range run.Summary.Failures {
		failed = append(failed, f.URL)
	}
	return audit.VerifyNotice{
		RunID:      run.ID.String(),
		FinishedAt: run.FinishedAt,
		ReportURI:  location,
		Loaded:     loaded,
		Checked:    run.Summary.Total,
		Passed:     run.Summary.Passed(),
		Failed:     run.Summary.Failed(),
		Outcomes:   outcomes,
		FailedURLs: failed,
	}
}
