package audit

import (
	"net/http"
	"strings"
	"time"
)

// PageRecord is the normalized form of one content item kept by a harvest.
// Records are built once by the classifier and never mutated afterwards.
type PageRecord struct {
	Title string
	// BaseURL is the site root the relative path hangs off; it never ends in a slash.
	BaseURL      string
	RelativePath string
	SpaceKey     string
	// ArchivedSpace is fixed at classification time. Harvest output never
	// contains records where it is true.
	ArchivedSpace    bool
	LastModified     time.Time
	ArchiveCandidate bool
	// Creator and LastModifier are empty when the upstream payload omits them.
	Creator      string
	LastModifier string
}

// AbsoluteURL joins the base URL and relative path with exactly one slash.
func (p PageRecord) AbsoluteURL() string {
	return JoinURL(p.BaseURL, p.RelativePath)
}

// JoinURL concatenates a base URL and a server-relative path without doubling
// or dropping the separator.
func JoinURL(base, relative string) string {
	base = strings.TrimRight(base, "/")
	if relative == "" {
		return base
	}
	if !strings.HasPrefix(relative, "/") {
		relative = "/" + relative
	}
	return base + relative
}

// ReportEntry is the subset of a report row the verifier needs.
type ReportEntry struct {
	Title string
	URL   string
}

// Outcome classifies one reachability check.
type Outcome string

// Verification outcomes.
const (
	OutcomeReachable       Outcome = "reachable"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeOtherHTTPError  Outcome = "other_http_error"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeReachable,
	OutcomeForbidden,
	OutcomeNotFound,
	OutcomeOtherHTTPError,
	OutcomeConnectionError,
}

// OutcomeForStatus maps an HTTP status code onto an Outcome.
func OutcomeForStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeReachable
	case code == http.StatusForbidden:
		return OutcomeForbidden
	case code == http.StatusNotFound:
		return OutcomeNotFound
	default:
		return OutcomeOtherHTTPError
	}
}

// SampleResult records the outcome of checking one sampled URL.
type SampleResult struct {
	URL     string
	Title   string
	Outcome Outcome
	// StatusCode is nil when no HTTP response was received.
	StatusCode *int
	Err        string
	Duration   time.Duration
}

// Passed reports whether the page was publicly reachable.
func (r SampleResult) Passed() bool {
	return r.Outcome == OutcomeReachable
}

// Summary aggregates a batch of SampleResults.
type Summary struct {
	Total    int
	Counts   map[Outcome]int
	Failures []SampleResult
}

// Passed returns the number of reachable results.
func (s Summary) Passed() int {
	return s.Counts[OutcomeReachable]
}

// Failed returns the number of results that were not reachable.
func (s Summary) Failed() int {
	return s.Total - s.Passed()
}

// FetchRequest captures one anonymous HTTP request.
type FetchRequest struct {
	URL     string
	Method  string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// HarvestNotice is published when a harvest run completes.
type HarvestNotice struct {
	RunID            string    `json:"run_id"`
	FinishedAt       time.Time `json:"finished_at"`
	ItemsFetched     int       `json:"items_fetched"`
	PagesKept        int       `json:"pages_kept"`
	ArchivedSkipped  int       `json:"archived_skipped"`
	ArchiveCandidate int       `json:"archive_candidates"`
	ThresholdYear    int       `json:"threshold_year"`
	ReportURI        string    `json:"report_uri"`
	ReportSHA256     string    `json:"report_sha256"`
}

// VerifyNotice is published when a verification run completes.
type VerifyNotice struct {
	RunID      string         `json:"run_id"`
	FinishedAt time.Time      `json:"finished_at"`
	ReportURI  string         `json:"report_uri"`
	Loaded     int            `json:"loaded"`
	Checked    int            `json:"checked"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	Outcomes   map[string]int `json:"outcomes"`
	FailedURLs []string       `json:"failed_urls,omitempty"`
}
