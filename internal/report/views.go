package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ViewCounts maps a page title to its view count.
type ViewCounts map[string]int

// LoadViewCounts reads an analytics export, locating the title and count
// columns by header name. Rows whose count is not a whole number are skipped;
// a repeated title keeps its last count.
func LoadViewCounts(r io.Reader, titleColumn, countColumn string, logger *zap.Logger) (ViewCounts, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("view counts: %w", ErrEmptyReport)
	}
	if err != nil {
		return nil, fmt.Errorf("read view counts header: %w", err)
	}
	titleIdx := indexOf(header, titleColumn)
	if titleIdx < 0 {
		return nil, fmt.Errorf("view counts: column %q not found", titleColumn)
	}
	countIdx := indexOf(header, countColumn)
	if countIdx < 0 {
		return nil, fmt.Errorf("view counts: column %q not found", countColumn)
	}

	counts := ViewCounts{}
	skipped := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read view counts row: %w", err)
		}
		if titleIdx >= len(row) || countIdx >= len(row) {
			skipped++
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(row[countIdx]), ",", ""))
		if err != nil || n < 0 {
			skipped++
			continue
		}
		counts[row[titleIdx]] = n
	}
	if skipped > 0 {
		logger.Warn("skipped view count rows", zap.Int("rows", skipped))
	}
	return counts, nil
}
