// Package classify turns raw listing items into PageRecords.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// timestampLayouts are tried in order; the second covers offsets without a colon.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
}

// Config holds the inputs classification depends on.
type Config struct {
	BaseURL        string
	ArchivedSpaces map[string]struct{}
	ThresholdYear  int
}

// Classifier is a pure function of its Config and the raw item.
type Classifier struct {
	cfg Config
}

// New builds a Classifier. The archived set is copied.
func New(cfg Config) *Classifier {
	archived := make(map[string]struct{}, len(cfg.ArchivedSpaces))
	for key := range cfg.ArchivedSpaces {
		archived[key] = struct{}{}
	}
	cfg.ArchivedSpaces = archived
	return &Classifier{cfg: cfg}
}

type rawItem struct {
	Title string `json:"title"`
	Space *struct {
		Key string `json:"key"`
	} `json:"space"`
	Expandable struct {
		Space string `json:"space"`
	} `json:"_expandable"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
	History *struct {
		CreatedBy   *person `json:"createdBy"`
		LastUpdated *struct {
			When string  `json:"when"`
			By   *person `json:"by"`
		} `json:"lastUpdated"`
	} `json:"history"`
}

type person struct {
	DisplayName string `json:"displayName"`
}

// Classify decodes one listing item. kept is false when the item belongs to an
// archived space; in that case the record is zero and err is nil.
func (c *Classifier) Classify(raw json.RawMessage) (record audit.PageRecord, kept bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return audit.PageRecord{}, false, fmt.Errorf("%w: item is not an object", audit.ErrMalformedResponse)
	}
	var item rawItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return audit.PageRecord{}, false, fmt.Errorf("%w: decode item: %w", audit.ErrMalformedResponse, err)
	}

	spaceKey, err := spaceKeyOf(item)
	if err != nil {
		return audit.PageRecord{}, false, err
	}
	if _, archived := c.cfg.ArchivedSpaces[spaceKey]; archived {
		return audit.PageRecord{}, false, nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return audit.PageRecord{}, false, audit.MissingField("title")
	}
	webui := strings.TrimSpace(item.Links.WebUI)
	if webui == "" {
		return audit.PageRecord{}, false, audit.MissingField("_links.webui")
	}

	if item.History == nil || item.History.LastUpdated == nil || strings.TrimSpace(item.History.LastUpdated.When) == "" {
		return audit.PageRecord{}, false, audit.MissingField("history.lastUpdated.when")
	}
	when := strings.TrimSpace(item.History.LastUpdated.When)
	modified, err := parseTimestamp(when)
	if err != nil {
		return audit.PageRecord{}, false, &audit.FieldError{
			Kind:  audit.ErrMalformedTimestamp,
			Field: "history.lastUpdated.when",
			Value: when,
		}
	}

	record = audit.PageRecord{
		Title:            title,
		BaseURL:          c.cfg.BaseURL,
		RelativePath:     webui,
		SpaceKey:         spaceKey,
		ArchivedSpace:    false,
		LastModified:     modified,
		ArchiveCandidate: modified.Year() <= c.cfg.ThresholdYear,
	}
	if by := item.History.CreatedBy; by != nil {
		record.Creator = strings.TrimSpace(by.DisplayName)
	}
	if by := item.History.LastUpdated.By; by != nil {
		record.LastModifier = strings.TrimSpace(by.DisplayName)
	}
	return record, true, nil
}

// spaceKeyOf prefers an expanded space object and otherwise reads the key off
// the tail of the .../space/<KEY> link.
func spaceKeyOf(item rawItem) (string, error) {
	if item.Space != nil {
		if key := strings.TrimSpace(item.Space.Key); key != "" {
			return key, nil
		}
	}
	link := strings.TrimSpace(item.Expandable.Space)
	if link == "" {
		return "", audit.MissingField("_expandable.space")
	}
	path := link
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	idx := strings.LastIndex(path, "/space/")
	if idx < 0 {
		return "", audit.Malformed("_expandable.space", link)
	}
	key := path[idx+len("/space/"):]
	if key == "" || strings.Contains(key, "/") {
		return "", audit.Malformed("_expandable.space", link)
	}
	return key, nil
}

func parseTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
