// Package storage resolves report locations to blob stores. A location is
// either a gs://bucket/object URI or a local file path.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	gcsclient "cloud.google.com/go/storage"

	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/storage/gcs"
	"github.com/JakeFAU/public-page-audit/internal/storage/local"
)

const gcsScheme = "gs://"

// Location is a parsed report destination.
type Location struct {
	// Bucket is set for GCS locations.
	Bucket string
	// Dir is the parent directory for local locations.
	Dir string
	// Object is the object name within Bucket or the file name within Dir.
	Object string
}

// IsGCS reports whether the location lives in Cloud Storage.
func (l Location) IsGCS() bool {
	return l.Bucket != ""
}

// String renders the location in the form ParseLocation accepts.
func (l Location) String() string {
	if l.IsGCS() {
		return gcsScheme + l.Bucket + "/" + l.Object
	}
	return filepath.Join(l.Dir, l.Object)
}

// ParseLocation splits raw into a bucket/object pair or a directory/file pair.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("location is required")
	}
	if rest, ok := strings.CutPrefix(raw, gcsScheme); ok {
		bucket, object, found := strings.Cut(rest, "/")
		object = strings.TrimLeft(object, "/")
		if !found || bucket == "" || object == "" {
			return Location{}, fmt.Errorf("location %q must be gs://bucket/object", raw)
		}
		return Location{Bucket: bucket, Object: object}, nil
	}
	path := strings.TrimPrefix(raw, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return Location{}, fmt.Errorf("resolve %q: %w", raw, err)
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return Location{}, fmt.Errorf("location %q names a directory, not a file", raw)
	}
	return Location{Dir: filepath.Dir(abs), Object: filepath.Base(abs)}, nil
}

// Open returns a blob store able to read and write loc, and a function that
// releases any client it created.
func Open(ctx context.Context, loc Location) (audit.BlobStore, func() error, error) {
	if loc.IsGCS() {
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: loc.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	}
	store, err := local.New(local.Config{BaseDir: loc.Dir})
	if err != nil {
		return nil, nil, err
	}
	return store, func() error { return nil }, nil
}
