// Package harvest drives discovery: it walks the listing, classifies every
// item, and accumulates the kept PageRecords in listing order.
package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/clock/system"
	uuidgen "github.com/JakeFAU/public-page-audit/internal/id/uuid"
	"github.com/JakeFAU/public-page-audit/internal/listing"
	"github.com/JakeFAU/public-page-audit/internal/progress"
)

// Item-level failure policies.
const (
	PolicyAbort = "abort"
	PolicySkip  = "skip"
)

// Source yields listing pages; *listing.Paginator satisfies it.
type Source interface {
	Pages(ctx context.Context) iter.Seq2[listing.Page, error]
}

// Classifier decides whether a raw item is kept; *classify.Classifier satisfies it.
type Classifier interface {
	Classify(raw json.RawMessage) (audit.PageRecord, bool, error)
}

// Stats are the running counters of a harvest.
type Stats struct {
	Pages      int
	Fetched    int
	Kept       int
	Archived   int
	Candidates int
	Skipped    int
}

// Result is the outcome of a successful harvest.
type Result struct {
	RunID      uuid.UUID
	Records    []audit.PageRecord
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Harvester orchestrates Source -> Classifier -> accumulation.
type Harvester struct {
	source     Source
	classifier Classifier
	policy     string
	emitter    progress.Emitter
	clock      audit.Clock
	ids        audit.IDGenerator
	logger     *zap.Logger
}

// Option customizes a Harvester.
type Option func(*Harvester)

// WithPolicy sets the item-level failure policy (PolicyAbort or PolicySkip).
func WithPolicy(policy string) Option {
	return func(h *Harvester) {
		h.policy = policy
	}
}

// WithEmitter routes progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(h *Harvester) {
		if e != nil {
			h.emitter = e
		}
	}
}

// WithClock overrides the time source.
func WithClock(c audit.Clock) Option {
	return func(h *Harvester) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g audit.IDGenerator) Option {
	return func(h *Harvester) {
		if g != nil {
			h.ids = g
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Harvester) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New wires a Harvester.
func New(source Source, classifier Classifier, opts ...Option) (*Harvester, error) {
	if source == nil {
		return nil, errors.New("harvest: source is required")
	}
	if classifier == nil {
		return nil, errors.New("harvest: classifier is required")
	}
	h := &Harvester{
		source:     source,
		classifier: classifier,
		policy:     PolicyAbort,
		emitter:    progress.Discard,
		clock:      system.New(),
		ids:        uuidgen.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.policy != PolicyAbort && h.policy != PolicySkip {
		return nil, fmt.Errorf("harvest: unknown item policy %q", h.policy)
	}
	return h, nil
}

// Run performs one complete harvest. Any listing failure, and any item failure
// under the abort policy, fails the run without a partial result.
func (h *Harvester) Run(ctx context.Context) (Result, error) {
	runID, err := h.ids.NewRawID()
	if err != nil {
		return Result{}, fmt.Errorf("harvest: %w", err)
	}
	started := h.clock.Now()
	h.emit(progress.Event{RunID: runID, Stage: progress.StageHarvestStart})
	h.logger.Info("harvest started", zap.String("run_id", runID.String()))

	var (
		stats   Stats
		records []audit.PageRecord
	)
	fail := func(err error) (Result, error) {
		h.emit(progress.Event{
			RunID:   runID,
			Stage:   progress.StageHarvestError,
			Fetched: stats.Fetched,
			Kept:    stats.Kept,
			Dur:     h.clock.Now().Sub(started),
			Note:    err.Error(),
		})
		h.logger.Error("harvest failed",
			zap.String("run_id", runID.String()),
			zap.Int("fetched", stats.Fetched),
			zap.Error(err),
		)
		return Result{}, err
	}

	for page, err := range h.source.Pages(ctx) {
		if err != nil {
			return fail(fmt.Errorf("harvest page %d: %w", stats.Pages+1, err))
		}
		stats.Pages++
		for i, raw := range page.Items {
			stats.Fetched++
			record, kept, err := h.classifier.Classify(raw)
			if err != nil {
				if h.policy == PolicyAbort {
					return fail(fmt.Errorf("harvest page %d item %d: %w", page.Number, i+1, err))
				}
				stats.Skipped++
				h.logger.Warn("skipping invalid item",
					zap.Int("page", page.Number),
					zap.Int("item", i+1),
					zap.Error(err),
				)
				continue
			}
			if !kept {
				stats.Archived++
				continue
			}
			stats.Kept++
			if record.ArchiveCandidate {
				stats.Candidates++
			}
			records = append(records, record)
		}
		h.emit(progress.Event{
			RunID:      runID,
			Stage:      progress.StagePageFetched,
			Page:       page.Number,
			Items:      len(page.Items),
			Fetched:    stats.Fetched,
			Kept:       stats.Kept,
			Archived:   stats.Archived,
			Candidates: stats.Candidates,
			Skipped:    stats.Skipped,
		})
	}

	finished := h.clock.Now()
	h.emit(progress.Event{
		RunID:      runID,
		Stage:      progress.StageHarvestDone,
		Fetched:    stats.Fetched,
		Kept:       stats.Kept,
		Archived:   stats.Archived,
		Candidates: stats.Candidates,
		Skipped:    stats.Skipped,
		Dur:        finished.Sub(started),
	})
	h.logger.Info("harvest finished",
		zap.String("run_id", runID.String()),
		zap.Int("pages", stats.Pages),
		zap.Int("fetched", stats.Fetched),
		zap.Int("kept", stats.Kept),
		zap.Int("archived", stats.Archived),
		zap.Int("candidates", stats.Candidates),
		zap.Int("skipped", stats.Skipped),
	)
	return Result{
		RunID:      runID,
		Records:    records,
		Stats:      stats,
		StartedAt:  started,
		FinishedAt: finished,
	}, nil
}

func (h *Harvester) emit(evt progress.Event) {
	evt.TS = h.clock.Now()
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	h.emitter.Emit(evt)
}
