package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// ErrEmptyReport is returned when the report has no header row.
var ErrEmptyReport = errors.New("report is empty")

// Read loads {title, url} entries from a report. Columns are located by header
// name; an unrecognized header falls back to the first two columns with a
// warning. Rows without a URL are skipped.
func Read(r io.Reader, logger *zap.Logger) ([]audit.ReportEntry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyReport
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	titleIdx := indexOf(header, ColumnTitle)
	urlIdx := indexOf(header, ColumnURL)
	if titleIdx < 0 || urlIdx < 0 {
		logger.Warn("unexpected report header, using first two columns", zap.Strings("header", header))
		titleIdx, urlIdx = 0, 1
	}

	var entries []audit.ReportEntry
	skipped := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report row: %w", err)
		}
		if urlIdx >= len(row) || strings.TrimSpace(row[urlIdx]) == "" {
			skipped++
			continue
		}
		entry := audit.ReportEntry{URL: strings.TrimSpace(row[urlIdx])}
		if titleIdx < len(row) {
			entry.Title = row[titleIdx]
		}
		entries = append(entries, entry)
	}
	if skipped > 0 {
		logger.Warn("skipped report rows without a url", zap.Int("rows", skipped))
	}
	return entries, nil
}

// indexOf finds name in header, ignoring case, surrounding space, and a BOM.
func indexOf(header []string, name string) int {
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
