// Package config loads and validates audit configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Item-level failure policies for the harvest.
const (
	OnInvalidItemAbort = "abort"
	OnInvalidItemSkip  = "skip"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Report  ReportConfig  `mapstructure:"report"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig identifies the content site being audited.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ListingPath string `mapstructure:"listing_path"`
	UserAgent   string `mapstructure:"user_agent"`

	// RespectRobots makes every request honor the site's robots.txt.
	RespectRobots bool `mapstructure:"respect_robots"`
}

// HarvestConfig governs listing, classification, and filtering.
type HarvestConfig struct {
	ContentType          string        `mapstructure:"content_type"`
	Expand               []string      `mapstructure:"expand"`
	PageLimit            int           `mapstructure:"page_limit"`
	MaxPages             int           `mapstructure:"max_pages"`
	ArchivedSpaces       []string      `mapstructure:"archived_spaces"`
	ArchiveThresholdYear int           `mapstructure:"archive_threshold_year"`
	OnInvalidItem        string        `mapstructure:"on_invalid_item"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// ReportConfig locates the report and its optional view-count enrichment.
type ReportConfig struct {
	// Location is a local path or a gs://bucket/object URI.
	Location         string `mapstructure:"location"`
	ViewsFile        string `mapstructure:"views_file"`
	ViewsTitleColumn string `mapstructure:"views_title_column"`
	ViewsCountColumn string `mapstructure:"views_count_column"`
}

// VerifyConfig governs sampling and the reachability pool.
type VerifyConfig struct {
	SampleRate        float64       `mapstructure:"sample_rate"`
	Seed              uint64        `mapstructure:"seed"`
	Concurrency       int           `mapstructure:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Method            string        `mapstructure:"method"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// NotifyConfig holds Pub/Sub settings for run notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the status server when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features. Development is a string so
// "auto" can defer to terminal detection.
type LoggingConfig struct {
	Development string `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// New returns a Viper instance with env bindings and defaults applied, ready
// for flag bindings before FromViper is called.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PAGEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FromViper unmarshals, normalizes, and validates the configuration.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv values survive Unmarshal.
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.listing_path", "/rest/api/content")
	v.SetDefault("site.user_agent", "public-page-audit/0.1")
	v.SetDefault("site.respect_robots", false)
	v.SetDefault("harvest.content_type", "page")
	v.SetDefault("harvest.expand", []string{"history.lastUpdated", "history.createdBy"})
	v.SetDefault("harvest.page_limit", 0)
	v.SetDefault("harvest.max_pages", 0)
	v.SetDefault("harvest.archived_spaces", []string{})
	v.SetDefault("harvest.archive_threshold_year", 2019)
	v.SetDefault("harvest.on_invalid_item", OnInvalidItemAbort)
	v.SetDefault("harvest.timeout", 30*time.Second)
	v.SetDefault("report.location", "non_archived_public_pages.csv")
	v.SetDefault("report.views_file", "")
	v.SetDefault("report.views_title_column", "Title")
	v.SetDefault("report.views_count_column", "Views")
	v.SetDefault("verify.sample_rate", 0.1)
	v.SetDefault("verify.seed", 0)
	v.SetDefault("verify.concurrency", 5)
	v.SetDefault("verify.timeout", 10*time.Second)
	v.SetDefault("verify.method", http.MethodHead)
	v.SetDefault("verify.requests_per_second", 0)
	v.SetDefault("verify.burst", 1)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", "auto")
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() {
	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	c.Site.ListingPath = strings.TrimSpace(c.Site.ListingPath)
	if c.Site.ListingPath != "" && !strings.HasPrefix(c.Site.ListingPath, "/") {
		c.Site.ListingPath = "/" + c.Site.ListingPath
	}
	c.Harvest.ArchivedSpaces = cleanList(c.Harvest.ArchivedSpaces)
	c.Harvest.Expand = cleanList(c.Harvest.Expand)
	c.Harvest.OnInvalidItem = strings.ToLower(strings.TrimSpace(c.Harvest.OnInvalidItem))
	c.Verify.Method = strings.ToUpper(strings.TrimSpace(c.Verify.Method))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateBaseURL(c.Site.BaseURL); err != nil {
		return err
	}
	if c.Site.ListingPath == "" {
		return fmt.Errorf("site.listing_path must be set")
	}
	if c.Harvest.ContentType == "" {
		return fmt.Errorf("harvest.content_type must be set")
	}
	if c.Harvest.PageLimit < 0 {
		return fmt.Errorf("harvest.page_limit must be >= 0")
	}
	if c.Harvest.MaxPages < 0 {
		return fmt.Errorf("harvest.max_pages must be >= 0")
	}
	if c.Harvest.ArchiveThresholdYear <= 0 {
		return fmt.Errorf("harvest.archive_threshold_year must be > 0")
	}
	switch c.Harvest.OnInvalidItem {
	case OnInvalidItemAbort, OnInvalidItemSkip:
	default:
		return fmt.Errorf("harvest.on_invalid_item must be %q or %q", OnInvalidItemAbort, OnInvalidItemSkip)
	}
	if c.Harvest.Timeout <= 0 {
		return fmt.Errorf("harvest.timeout must be > 0")
	}
	if strings.TrimSpace(c.Report.Location) == "" {
		return fmt.Errorf("report.location must be set")
	}
	if c.Verify.SampleRate <= 0 || c.Verify.SampleRate > 1 {
		return fmt.Errorf("verify.sample_rate must be in (0, 1]")
	}
	if c.Verify.Concurrency <= 0 {
		return fmt.Errorf("verify.concurrency must be > 0")
	}
	if c.Verify.Timeout <= 0 {
		return fmt.Errorf("verify.timeout must be > 0")
	}
	if c.Verify.Method != http.MethodHead && c.Verify.Method != http.MethodGet {
		return fmt.Errorf("verify.method must be HEAD or GET")
	}
	if c.Verify.RequestsPerSecond < 0 {
		return fmt.Errorf("verify.requests_per_second must be >= 0")
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return nil
}

// StartURL is the first listing URL the harvest requests.
func (c Config) StartURL() string {
	return c.Site.BaseURL + c.Site.ListingPath
}

// ArchivedSpaceSet returns the archived space keys as a set.
func (c Config) ArchivedSpaceSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Harvest.ArchivedSpaces))
	for _, key := range c.Harvest.ArchivedSpaces {
		set[key] = struct{}{}
	}
	return set
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url %q must start with http:// or https://", raw)
	}
	return nil
}

// cleanList trims entries, splits comma-joined values from env vars, and drops blanks.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
