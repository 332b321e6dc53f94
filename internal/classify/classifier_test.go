package classify

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

func newClassifier() *Classifier {
	return New(Config{
		BaseURL:        "https://x.org",
		ArchivedSpaces: map[string]struct{}{"COV19": {}, "DR": {}},
		ThresholdYear:  2017,
	})
}

func item(space, title, webui, when string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": "1",
		"type": "page",
		"title": %q,
		"_expandable": {"space": %q},
		"_links": {"webui": %q},
		"history": {
			"createdBy": {"displayName": "Ada Creator"},
			"lastUpdated": {"when": %q, "by": {"displayName": "Lin Editor"}}
		}
	}`, title, space, webui, when))
}

func TestClassifyKeepsActivePage(t *testing.T) {
	t.Parallel()

	rec, kept, err := newClassifier().Classify(item("/rest/api/space/FOO", "Home", "/display/FOO/Home", "2023-05-04T10:11:12.000Z"))
	require.NoError(t, err)
	require.True(t, kept)
	require.Equal(t, "Home", rec.Title)
	require.Equal(t, "FOO", rec.SpaceKey)
	require.Equal(t, "https://x.org/display/FOO/Home", rec.AbsoluteURL())
	require.Equal(t, "Ada Creator", rec.Creator)
	require.Equal(t, "Lin Editor", rec.LastModifier)
	require.False(t, rec.ArchiveCandidate)
	require.False(t, rec.ArchivedSpace)
	require.Equal(t, time.Date(2023, 5, 4, 10, 11, 12, 0, time.UTC), rec.LastModified.UTC())
}

func TestClassifyIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newClassifier()
	raw := item("/rest/api/space/FOO", "Home", "/display/FOO/Home", "2015-01-01T00:00:00Z")
	first, kept1, err1 := c.Classify(raw)
	second, kept2, err2 := c.Classify(raw)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, kept1, kept2)
	require.Equal(t, first, second)
}

func TestClassifyDiscardsArchivedSpace(t *testing.T) {
	t.Parallel()

	rec, kept, err := newClassifier().Classify(item("/rest/api/space/COV19", "Old", "/display/COV19/Old", "2020-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.False(t, kept)
	require.Equal(t, audit.PageRecord{}, rec)
}

func TestClassifyDiscardsBeforeCheckingOtherFields(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"_expandable":{"space":"/rest/api/space/DR"}}`)
	_, kept, err := newClassifier().Classify(raw)
	require.NoError(t, err)
	require.False(t, kept)
}

func TestClassifyThresholdBoundary(t *testing.T) {
	t.Parallel()

	c := newClassifier()
	tests := []struct {
		when string
		want bool
	}{
		{"2015-06-01T00:00:00Z", true},
		{"2017-12-31T23:59:59Z", true},
		{"2018-01-01T00:00:00Z", false},
		{"2024-02-02T02:02:02.123+01:00", false},
	}
	for _, tt := range tests {
		rec, kept, err := c.Classify(item("/rest/api/space/FOO", "P", "/x", tt.when))
		require.NoError(t, err, tt.when)
		require.True(t, kept)
		require.Equal(t, tt.want, rec.ArchiveCandidate, tt.when)
	}
}

func TestClassifyAcceptsOffsetWithoutColon(t *testing.T) {
	t.Parallel()

	rec, _, err := newClassifier().Classify(item("/rest/api/space/FOO", "P", "/x", "2016-03-04T05:06:07.000+0100"))
	require.NoError(t, err)
	require.Equal(t, 2016, rec.LastModified.Year())
	require.True(t, rec.ArchiveCandidate)
}

func TestClassifyURLJoin(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"https://x.org", "https://x.org/"} {
		c := New(Config{BaseURL: base, ThresholdYear: 2017})
		for _, rel := range []string{"/display/FOO", "display/FOO"} {
			rec, _, err := c.Classify(item("/rest/api/space/FOO", "P", rel, "2020-01-01T00:00:00Z"))
			require.NoError(t, err)
			require.Equal(t, "https://x.org/display/FOO", rec.AbsoluteURL())
		}
	}
}

func TestClassifyPrefersExpandedSpace(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"title": "Expanded",
		"space": {"key": "BAR"},
		"_links": {"webui": "/display/BAR/Expanded"},
		"history": {"lastUpdated": {"when": "2019-01-01T00:00:00Z"}}
	}`)
	rec, kept, err := newClassifier().Classify(raw)
	require.NoError(t, err)
	require.True(t, kept)
	require.Equal(t, "BAR", rec.SpaceKey)
	require.Empty(t, rec.Creator)
	require.Empty(t, rec.LastModifier)
}

func TestClassifyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   json.RawMessage
		want  error
		field string
	}{
		{
			name:  "missing space",
			raw:   json.RawMessage(`{"title":"P","_links":{"webui":"/x"}}`),
			want:  audit.ErrMissingField,
			field: "_expandable.space",
		},
		{
			name:  "unexpected space shape",
			raw:   item("/rest/api/spaces", "P", "/x", "2020-01-01T00:00:00Z"),
			want:  audit.ErrMalformedResponse,
			field: "_expandable.space",
		},
		{
			name:  "space key followed by more path",
			raw:   item("/rest/api/space/FOO/content", "P", "/x", "2020-01-01T00:00:00Z"),
			want:  audit.ErrMalformedResponse,
			field: "_expandable.space",
		},
		{
			name:  "missing title",
			raw:   item("/rest/api/space/FOO", "", "/x", "2020-01-01T00:00:00Z"),
			want:  audit.ErrMissingField,
			field: "title",
		},
		{
			name:  "missing webui",
			raw:   item("/rest/api/space/FOO", "P", "", "2020-01-01T00:00:00Z"),
			want:  audit.ErrMissingField,
			field: "_links.webui",
		},
		{
			name:  "missing history",
			raw:   json.RawMessage(`{"title":"P","_expandable":{"space":"/rest/api/space/FOO"},"_links":{"webui":"/x"}}`),
			want:  audit.ErrMissingField,
			field: "history.lastUpdated.when",
		},
		{
			name:  "bad timestamp",
			raw:   item("/rest/api/space/FOO", "P", "/x", "last tuesday"),
			want:  audit.ErrMalformedTimestamp,
			field: "history.lastUpdated.when",
		},
	}
	c := newClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, kept, err := c.Classify(tt.raw)
			require.False(t, kept)
			require.ErrorIs(t, err, tt.want)
			var fe *audit.FieldError
			require.ErrorAs(t, err, &fe)
			require.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestClassifyRejectsNonObject(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`[]`, `"page"`, `null`, ``} {
		_, _, err := newClassifier().Classify(json.RawMessage(raw))
		require.ErrorIs(t, err, audit.ErrMalformedResponse, raw)
	}
}

func TestNewCopiesArchivedSet(t *testing.T) {
	t.Parallel()

	set := map[string]struct{}{"OLD": {}}
	c := New(Config{BaseURL: "https://x.org", ArchivedSpaces: set, ThresholdYear: 2017})
	delete(set, "OLD")
	_, kept, err := c.Classify(item("/rest/api/space/OLD", "P", "/x", "2020-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.False(t, kept)
}
