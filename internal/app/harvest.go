package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/classify"
	"github.com/JakeFAU/public-page-audit/internal/harvest"
	"github.com/JakeFAU/public-page-audit/internal/hash/sha256"
	"github.com/JakeFAU/public-page-audit/internal/listing"
	"github.com/JakeFAU/public-page-audit/internal/report"
)

// HarvestReport is everything the harvest command prints.
type HarvestReport struct {
	Result        harvest.Result
	Written       report.Written
	ThresholdYear int
	// ViewCounts is true when the report was enriched and ordered by views.
	ViewCounts bool
}

// Harvest walks the listing, classifies every item, and writes the report.
// Listing, classification, and write failures are returned unchanged so the
// caller can match them against the audit error classes.
func (a *App) Harvest(ctx context.Context) (HarvestReport, error) {
	cfg := a.cfg
	paginator, err := listing.New(a.fetcher(cfg.Harvest.Timeout), listing.Config{
		StartURL:    cfg.StartURL(),
		BaseURL:     cfg.Site.BaseURL,
		ContentType: cfg.Harvest.ContentType,
		Expand:      cfg.Harvest.Expand,
		PageLimit:   cfg.Harvest.PageLimit,
		MaxPages:    cfg.Harvest.MaxPages,
	}, listing.WithLogger(a.logger.Named("listing")))
	if err != nil {
		return HarvestReport{}, fmt.Errorf("init listing: %w", err)
	}
	classifier := classify.New(classify.Config{
		BaseURL:        cfg.Site.BaseURL,
		ArchivedSpaces: cfg.ArchivedSpaceSet(),
		ThresholdYear:  cfg.Harvest.ArchiveThresholdYear,
	})
	harvester, err := harvest.New(paginator, classifier,
		harvest.WithPolicy(cfg.Harvest.OnInvalidItem),
		harvest.WithEmitter(a.hub),
		harvest.WithLogger(a.logger.Named("harvest")),
	)
	if err != nil {
		return HarvestReport{}, fmt.Errorf("init harvest: %w", err)
	}

	result, err := harvester.Run(ctx)
	if err != nil {
		return HarvestReport{}, err
	}

	var views report.ViewCounts
	if cfg.Report.ViewsFile != "" {
		views, err = a.loadViews(ctx)
		if err != nil {
			return HarvestReport{}, err
		}
	}

	store, loc, release, err := a.open(ctx, cfg.Report.Location)
	if err != nil {
		return HarvestReport{}, audit.WriteFailure(cfg.Report.Location, err)
	}
	defer release()
	writer := report.NewWriter(store, sha256.New(), a.logger.Named("report"))
	written, err := writer.Write(ctx, loc.Object, result.Records, views)
	if err != nil {
		return HarvestReport{}, err
	}

	a.notify(ctx, audit.HarvestNotice{
		RunID:            result.RunID.String(),
		FinishedAt:       result.FinishedAt,
		ItemsFetched:     result.Stats.Fetched,
		PagesKept:        result.Stats.Kept,
		ArchivedSkipped:  result.Stats.Archived,
		ArchiveCandidate: result.Stats.Candidates,
		ThresholdYear:    cfg.Harvest.ArchiveThresholdYear,
		ReportURI:        written.URI,
		ReportSHA256:     written.SHA256,
	})
	return HarvestReport{
		Result:        result,
		Written:       written,
		ThresholdYear: cfg.Harvest.ArchiveThresholdYear,
		ViewCounts:    views != nil,
	}, nil
}

func (a *App) loadViews(ctx context.Context) (report.ViewCounts, error) {
	cfg := a.cfg.Report
	store, loc, release, err := a.open(ctx, cfg.ViewsFile)
	if err != nil {
		return nil, fmt.Errorf("open view counts: %w", err)
	}
	defer release()
	rc, err := store.GetObject(ctx, loc.Object)
	if err != nil {
		return nil, fmt.Errorf("open view counts: %w", err)
	}
	defer func() { _ = rc.Close() }()
	views, err := report.LoadViewCounts(rc, cfg.ViewsTitleColumn, cfg.ViewsCountColumn, a.logger.Named("report"))
	if err != nil {
		return nil, err
	}
	a.logger.Info("view counts loaded", zap.String("location", loc.String()), zap.Int("titles", len(views)))
	return views, nil
}
