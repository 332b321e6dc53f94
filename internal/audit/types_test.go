package audit

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     string
		relative string
		want     string
	}{
		{name: "plain", base: "https://x.org", relative: "/display/FOO", want: "https://x.org/display/FOO"},
		{name: "trailing slash on base", base: "https://x.org/", relative: "/display/FOO", want: "https://x.org/display/FOO"},
		{name: "missing leading slash", base: "https://x.org", relative: "display/FOO", want: "https://x.org/display/FOO"},
		{name: "context path", base: "https://usmai.org/portal", relative: "/pages/viewpage.action?pageId=1", want: "https://usmai.org/portal/pages/viewpage.action?pageId=1"},
		{name: "empty relative", base: "https://x.org/", relative: "", want: "https://x.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, JoinURL(tt.base, tt.relative))
		})
	}
}

func TestPageRecordAbsoluteURL(t *testing.T) {
	t.Parallel()

	rec := PageRecord{BaseURL: "https://x.org", RelativePath: "/display/FOO"}
	require.Equal(t, "https://x.org/display/FOO", rec.AbsoluteURL())
}

func TestOutcomeForStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]Outcome{
		http.StatusOK:                  OutcomeReachable,
		http.StatusNoContent:           OutcomeReachable,
		http.StatusForbidden:           OutcomeForbidden,
		http.StatusNotFound:            OutcomeNotFound,
		http.StatusUnauthorized:        OutcomeOtherHTTPError,
		http.StatusInternalServerError: OutcomeOtherHTTPError,
		http.StatusMovedPermanently:    OutcomeOtherHTTPError,
	}
	for code, want := range cases {
		require.Equal(t, want, OutcomeForStatus(code), "status %d", code)
	}
}

func TestSummaryCounts(t *testing.T) {
	t.Parallel()

	s := Summary{
		Total:  5,
		Counts: map[Outcome]int{OutcomeReachable: 3, OutcomeNotFound: 2},
	}
	require.Equal(t, 3, s.Passed())
	require.Equal(t, 2, s.Failed())
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	var fetchErr error = &FetchFailure{URL: "https://x.org/rest/api/content", StatusCode: 404}
	wrapped := fmt.Errorf("harvest: %w", fetchErr)
	require.ErrorIs(t, wrapped, ErrFetch)
	var ff *FetchFailure
	require.ErrorAs(t, wrapped, &ff)
	require.Equal(t, 404, ff.StatusCode)
	require.Contains(t, ff.Error(), "https://x.org/rest/api/content")

	require.ErrorIs(t, MissingField("title"), ErrMissingField)
	require.ErrorIs(t, Malformed("_expandable.space", "/weird"), ErrMalformedResponse)

	conn := ConnectivityFailure("https://x.org", errors.New("dial tcp: refused"))
	require.ErrorIs(t, conn, ErrConnectivity)
	require.Contains(t, conn.Error(), "dial tcp: refused")

	write := WriteFailure("report.csv", errors.New("permission denied"))
	require.ErrorIs(t, write, ErrWrite)
}
