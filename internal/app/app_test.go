package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/config"
	"github.com/JakeFAU/public-page-audit/internal/publisher/memory"
	"github.com/JakeFAU/public-page-audit/internal/storage"
	memorystore "github.com/JakeFAU/public-page-audit/internal/storage/memory"
)

func item(space, title, when string) string {
	return fmt.Sprintf(`{
		"title": %q,
		"_expandable": {"space": "/rest/api/space/%s"},
		"_links": {"webui": "/display/%s/%s"},
		"history": {
			"createdBy": {"displayName": "Ada"},
			"lastUpdated": {"when": %q, "by": {"displayName": "Lin"}}
		}
	}`, title, space, space, title, when)
}

// newSite serves a two-page listing plus the pages it lists.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	page1 := fmt.Sprintf(`{"results": [%s, %s, %s], "_links": {"next": "/rest/api/content?start=3"}}`,
		item("FOO", "Home", "2024-03-01T09:00:00.000Z"),
		item("ARCH", "Ancient", "2012-01-01T00:00:00.000Z"),
		item("FOO", "Old", "2015-06-01T00:00:00.000+0000"),
	)
	page2 := fmt.Sprintf(`{"results": [%s], "_links": {}}`, item("BAR", "Gone", "2022-01-01T00:00:00Z"))

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("start") == "3" {
			_, _ = io.WriteString(w, page2)
			return
		}
		_, _ = io.WriteString(w, page1)
	})
	mux.HandleFunc("/display/FOO/Home", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/display/FOO/Old", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		Site: config.SiteConfig{BaseURL: baseURL, ListingPath: "/rest/api/content", UserAgent: "audit-test"},
		Harvest: config.HarvestConfig{
			ContentType:          "page",
			Expand:               []string{"history.lastUpdated", "history.createdBy"},
			ArchivedSpaces:       []string{"ARCH"},
			ArchiveThresholdYear: 2019,
			OnInvalidItem:        config.OnInvalidItemAbort,
			Timeout:              5 * time.Second,
		},
		Report: config.ReportConfig{
			Location:         "pages.csv",
			ViewsTitleColumn: "Title",
			ViewsCountColumn: "Views",
		},
		Verify: config.VerifyConfig{
			SampleRate:  1,
			Seed:        7,
			Concurrency: 2,
			Timeout:     5 * time.Second,
			Method:      http.MethodHead,
		},
		Notify: config.NotifyConfig{ProjectID: "proj", Topic: "audits"},
	}
}

func newTestApp(t *testing.T, cfg config.Config, store audit.BlobStore) (*App, *memory.Publisher) {
	t.Helper()
	pub := memory.New()
	a, err := New(context.Background(), cfg, zap.NewNop(),
		WithNotifier(pub),
		WithRegisterer(prometheus.NewRegistry()),
		WithStoreOpener(func(context.Context, storage.Location) (audit.BlobStore, func() error, error) {
			return store, func() error { return nil }, nil
		}),
	)
	require.NoError(t, err)
	return a, pub
}

func TestHarvestWritesReportAndNotifies(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	store := memorystore.NewBlobStore()
	a, pub := newTestApp(t, testConfig(srv.URL), store)

	rep, err := a.Harvest(context.Background())
	require.NoError(t, err)
	a.Close(context.Background())

	require.Equal(t, 2, rep.Result.Stats.Pages)
	require.Equal(t, 4, rep.Result.Stats.Fetched)
	require.Equal(t, 3, rep.Result.Stats.Kept)
	require.Equal(t, 1, rep.Result.Stats.Archived)
	require.Equal(t, 1, rep.Result.Stats.Candidates)
	require.Equal(t, "memory://pages.csv", rep.Written.URI)
	require.False(t, rep.ViewCounts)

	data, ok := store.Bytes("pages.csv")
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[1], "Home,"+srv.URL+"/display/FOO/Home,FOO,Ada,Lin,2024-03-01,"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), ",Yes"))
	require.NotContains(t, string(data), "Ancient")

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "audits", msgs[0].Topic)
	var notice audit.HarvestNotice
	require.NoError(t, msgs[0].Decode(&notice))
	require.Equal(t, 3, notice.PagesKept)
	require.Equal(t, rep.Written.SHA256, notice.ReportSHA256)
	require.Equal(t, rep.Result.RunID.String(), notice.RunID)

	runs := a.Runs()
	require.Len(t, runs, 1)
	require.Equal(t, "harvest", runs[0].Kind)
	require.True(t, runs[0].Done)
	require.Equal(t, 3, runs[0].Kept)
}

func TestHarvestOrdersByViewCounts(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	store := memorystore.NewBlobStore()
	_, err := store.PutObject(context.Background(), "views.csv", "text/csv",
		strings.NewReader("Title,Space,Views\nGone,BAR,50\nOld,FOO,7\n"))
	require.NoError(t, err)
	cfg := testConfig(srv.URL)
	cfg.Report.ViewsFile = "views.csv"
	a, _ := newTestApp(t, cfg, store)
	defer a.Close(context.Background())

	rep, err := a.Harvest(context.Background())
	require.NoError(t, err)
	require.True(t, rep.ViewCounts)

	data, _ := store.Bytes("pages.csv")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[0]), ",View Count"))
	require.True(t, strings.HasPrefix(lines[1], "Gone,"))
	require.True(t, strings.HasPrefix(lines[2], "Old,"))
	require.True(t, strings.HasPrefix(lines[3], "Home,"))
}

func TestHarvestListingFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	store := memorystore.NewBlobStore()
	a, pub := newTestApp(t, testConfig(srv.URL), store)
	defer a.Close(context.Background())

	_, err := a.Harvest(context.Background())
	var fetchErr *audit.FetchFailure
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	_, written := store.Bytes("pages.csv")
	require.False(t, written)
	require.Empty(t, pub.Messages())
}

func TestHarvestStoreFailureIsWriteError(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	a, err := New(context.Background(), testConfig(srv.URL), nil,
		WithNotifier(memory.New()),
		WithRegisterer(prometheus.NewRegistry()),
		WithStoreOpener(func(context.Context, storage.Location) (audit.BlobStore, func() error, error) {
			return nil, nil, errors.New("bucket unavailable")
		}),
	)
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.Harvest(context.Background())
	require.ErrorIs(t, err, audit.ErrWrite)
	require.ErrorContains(t, err, "bucket unavailable")
}

func TestVerifyChecksHarvestedReport(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	store := memorystore.NewBlobStore()
	a, pub := newTestApp(t, testConfig(srv.URL), store)

	_, err := a.Harvest(context.Background())
	require.NoError(t, err)
	rep, err := a.Verify(context.Background())
	require.NoError(t, err)
	a.Close(context.Background())

	require.Equal(t, 3, rep.Loaded)
	summary := rep.Run.Summary
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 1, summary.Counts[audit.OutcomeReachable])
	require.Equal(t, 1, summary.Counts[audit.OutcomeForbidden])
	require.Equal(t, 1, summary.Counts[audit.OutcomeNotFound])

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	var notice audit.VerifyNotice
	require.NoError(t, msgs[1].Decode(&notice))
	require.Equal(t, 3, notice.Checked)
	require.Equal(t, 2, notice.Failed)
	require.Len(t, notice.FailedURLs, 2)
	require.Equal(t, 1, notice.Outcomes["not_found"])

	runs := a.Runs()
	require.Len(t, runs, 2)
	require.Equal(t, "verify", runs[1].Kind)
	require.Equal(t, 3, runs[1].Checked)
}

func TestVerifyReportProblems(t *testing.T) {
	t.Parallel()

	store := memorystore.NewBlobStore()
	a, _ := newTestApp(t, testConfig("https://wiki.example.org"), store)
	defer a.Close(context.Background())

	_, err := a.Verify(context.Background())
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "pages.csv", "text/csv", strings.NewReader("Page Title,Page URL\n"))
	require.NoError(t, err)
	_, err = a.Verify(context.Background())
	require.ErrorIs(t, err, errNoEntries)
}
