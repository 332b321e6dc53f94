package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// Column headers of the report.
const (
	ColumnTitle            = "Page Title"
	ColumnURL              = "Page URL"
	ColumnSpace            = "Space"
	ColumnCreator          = "Creator"
	ColumnLastModifier     = "Last Modifier"
	ColumnLastModified     = "Last Modified"
	ColumnArchiveCandidate = "Archive Candidate"
	ColumnViewCount        = "View Count"
)

// ContentType is the media type used when storing reports.
const ContentType = "text/csv"

// candidateMarker fills the archive-candidate cell; non-candidates are blank.
const candidateMarker = "Yes"

// Written describes a stored report.
type Written struct {
	URI    string
	SHA256 string
	Rows   int
	Bytes  int
}

// Writer encodes records and stores them through a BlobStore.
type Writer struct {
	store  audit.BlobStore
	hasher audit.Hasher
	logger *zap.Logger
}

// NewWriter builds a Writer. hasher may be nil to skip digests.
func NewWriter(store audit.BlobStore, hasher audit.Hasher, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, hasher: hasher, logger: logger}
}

// Write encodes records and stores them at object. When views is non-nil the
// report gains a view count column and rows are ordered by views, highest
// first, ties keeping harvest order. Every failure is an audit.ErrWrite.
func (w *Writer) Write(ctx context.Context, object string, records []audit.PageRecord, views ViewCounts) (Written, error) {
	data, err := Encode(records, views)
	if err != nil {
		return Written{}, audit.WriteFailure(object, err)
	}
	out := Written{Rows: len(records), Bytes: len(data)}
	if w.hasher != nil {
		sum, err := w.hasher.Hash(data)
		if err != nil {
			return Written{}, audit.WriteFailure(object, fmt.Errorf("hash report: %w", err))
		}
		out.SHA256 = sum
	}
	uri, err := w.store.PutObject(ctx, object, ContentType, bytes.NewReader(data))
	if err != nil {
		return Written{}, audit.WriteFailure(object, err)
	}
	out.URI = uri
	w.logger.Info("report written",
		zap.String("uri", uri),
		zap.Int("rows", out.Rows),
		zap.Int("bytes", out.Bytes),
		zap.String("sha256", out.SHA256),
	)
	return out, nil
}

// Encode renders records as CSV.
func Encode(records []audit.PageRecord, views ViewCounts) ([]byte, error) {
	header := []string{
		ColumnTitle,
		ColumnURL,
		ColumnSpace,
		ColumnCreator,
		ColumnLastModifier,
		ColumnLastModified,
		ColumnArchiveCandidate,
	}
	rows := records
	if views != nil {
		header = append(header, ColumnViewCount)
		rows = slices.Clone(records)
		slices.SortStableFunc(rows, func(a, b audit.PageRecord) int {
			return views[b.Title] - views[a.Title]
		})
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range rows {
		row := []string{
			rec.Title,
			rec.AbsoluteURL(),
			rec.SpaceKey,
			rec.Creator,
			rec.LastModifier,
			formatTime(rec.LastModified),
			"",
		}
		if rec.ArchiveCandidate {
			row[6] = candidateMarker
		}
		if views != nil {
			row = append(row, strconv.Itoa(views[rec.Title]))
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
