package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	loc, err := ParseLocation("gs://audit-bucket/reports/pages.csv")
	require.NoError(t, err)
	require.True(t, loc.IsGCS())
	require.Equal(t, "audit-bucket", loc.Bucket)
	require.Equal(t, "reports/pages.csv", loc.Object)
	require.Equal(t, "gs://audit-bucket/reports/pages.csv", loc.String())

	dir := t.TempDir()
	loc, err = ParseLocation(filepath.Join(dir, "out", "pages.csv"))
	require.NoError(t, err)
	require.False(t, loc.IsGCS())
	require.Equal(t, filepath.Join(dir, "out"), loc.Dir)
	require.Equal(t, "pages.csv", loc.Object)

	loc, err = ParseLocation("file://" + filepath.Join(dir, "x.csv"))
	require.NoError(t, err)
	require.Equal(t, dir, loc.Dir)

	loc, err = ParseLocation("relative.csv")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(loc.Dir))
	require.Equal(t, "relative.csv", loc.Object)
}

func TestParseLocationErrors(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "gs://", "gs://bucket", "gs://bucket/", "gs:///obj", "reports/"} {
		_, err := ParseLocation(raw)
		require.Error(t, err, raw)
	}
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()

	loc, err := ParseLocation(filepath.Join(t.TempDir(), "nested", "pages.csv"))
	require.NoError(t, err)
	store, closeFn, err := Open(context.Background(), loc)
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	_, err = store.PutObject(context.Background(), loc.Object, "text/csv", bytes.NewReader([]byte("a,b\n")))
	require.NoError(t, err)
	rc, err := store.GetObject(context.Background(), loc.Object)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck // test cleanup
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(data))
}
