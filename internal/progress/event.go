package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageHarvestStart Stage = "HARVEST_START"
	StagePageFetched  Stage = "PAGE_FETCHED"
	StageHarvestDone  Stage = "HARVEST_DONE"
	StageHarvestError Stage = "HARVEST_ERROR"
	StageVerifyStart  Stage = "VERIFY_START"
	StageCheckDone    Stage = "CHECK_DONE"
	StageVerifyDone   Stage = "VERIFY_DONE"
)

// Event is one progress milestone. Counters are running totals for the run
// unless noted.
type Event struct {
	RunID uuid.UUID
	// TS is the UTC time recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Page is the 1-based listing page number for PAGE_FETCHED.
	Page int
	// Items is the number of items on the page just fetched.
	Items      int
	Fetched    int
	Kept       int
	Archived   int
	Candidates int
	Skipped    int
	// Total is the planned number of checks for VERIFY_START.
	Total   int
	URL     string
	Outcome audit.Outcome
	Status  int
	Dur     time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageHarvestStart, StageHarvestDone, StageHarvestError, StageVerifyStart, StageVerifyDone:
	case StagePageFetched:
		if e.Page <= 0 {
			return errors.New("page fetched requires page number")
		}
	case StageCheckDone:
		if e.URL == "" {
			return errors.New("check done requires url")
		}
		if e.Outcome == "" {
			return errors.New("check done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageHarvestDone, StageHarvestError, StageVerifyDone:
		return true
	default:
		return false
	}
}
