package sinks

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/public-page-audit/internal/progress"
)

// RunSnapshot is the latest known state of one run.
type RunSnapshot struct {
	RunID      uuid.UUID      `json:"run_id"`
	Kind       string         `json:"kind"`
	Stage      progress.Stage `json:"stage"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Done       bool           `json:"done"`
	Pages      int            `json:"pages,omitempty"`
	Fetched    int            `json:"fetched,omitempty"`
	Kept       int            `json:"kept,omitempty"`
	Archived   int            `json:"archived,omitempty"`
	Candidates int            `json:"candidates,omitempty"`
	Skipped    int            `json:"skipped,omitempty"`
	Planned    int            `json:"planned,omitempty"`
	Checked    int            `json:"checked,omitempty"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// SnapshotSink folds events into per-run snapshots for the status endpoint.
type SnapshotSink struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*RunSnapshot
}

// NewSnapshotSink returns an empty SnapshotSink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{runs: make(map[uuid.UUID]*RunSnapshot)}
}

// Consume applies batch to the snapshots.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		run := s.runFor(evt)
		run.Stage = evt.Stage
		run.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StageHarvestStart, progress.StageVerifyStart:
			run.StartedAt = evt.TS
			run.Planned = evt.Total
		case progress.StagePageFetched:
			run.Pages = evt.Page
			run.Fetched = evt.Fetched
			run.Kept = evt.Kept
			run.Archived = evt.Archived
			run.Candidates = evt.Candidates
			run.Skipped = evt.Skipped
		case progress.StageCheckDone:
			run.Checked++
			run.Outcomes[string(evt.Outcome)]++
		case progress.StageHarvestDone, progress.StageHarvestError:
			run.Done = true
			run.Fetched = evt.Fetched
			run.Kept = evt.Kept
			run.Archived = evt.Archived
			run.Candidates = evt.Candidates
			run.Skipped = evt.Skipped
			run.Note = evt.Note
		case progress.StageVerifyDone:
			run.Done = true
			run.Note = evt.Note
		}
	}
	return nil
}

func (s *SnapshotSink) runFor(evt progress.Event) *RunSnapshot {
	run, ok := s.runs[evt.RunID]
	if !ok {
		run = &RunSnapshot{RunID: evt.RunID, StartedAt: evt.TS, Outcomes: map[string]int{}}
		s.runs[evt.RunID] = run
	}
	switch evt.Stage {
	case progress.StageVerifyStart, progress.StageCheckDone, progress.StageVerifyDone:
		run.Kind = "verify"
	default:
		run.Kind = "harvest"
	}
	return run
}

// Runs returns copies of all snapshots ordered by start time.
func (s *SnapshotSink) Runs() []RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunSnapshot, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		cp.Outcomes = maps.Clone(run.Outcomes)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b RunSnapshot) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
