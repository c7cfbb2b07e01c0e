// Package storage persists exported files under a configured root, either on
// the local filesystem or in a Google Cloud Storage bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Read when the named object does not exist.
// Every other read failure is a real error.
var ErrNotFound = errors.New("object not found")

// Kind selects a storage backend.
type Kind string

const (
	KindLocal Kind = "local"
	KindGCS   Kind = "gcs"
)

// ParseKind validates a configured storage type.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLocal, "":
		return KindLocal, nil
	case KindGCS, "gcp", "bucket":
		return KindGCS, nil
	default:
		return "", fmt.Errorf("ParseKind: unsupported storage type %q", s)
	}
}

// Object describes one stored file.
type Object struct {
	Name    string
	Size    int64
	Updated time.Time
}

// Backend reads and writes whole files by name relative to its root.
type Backend interface {
	// Read returns the file contents, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the file contents.
	Write(ctx context.Context, name string, data []byte) error

	// Location returns the full path or URI of name, for logging.
	Location(name string) string

	// List returns the files directly under the root.
	List(ctx context.Context) ([]Object, error)
}

// ObjectPath builds the location of an entity file for a storage kind and root:
// a filesystem path for local storage, a gs:// URI for GCS.
// Backends report their Location through the same helpers, so both always agree.
func ObjectPath(kind Kind, root, entity, ext string) string {
	name := entity + "." + ext
	if kind == KindGCS {
		bucket, prefix, err := ParseGCSURI(root)
		if err != nil {
			bucket, prefix = strings.TrimPrefix(root, "gs://"), ""
		}
		return gcsURI(bucket, prefix, name)
	}
	return localPath(root, name)
}

func localPath(root, name string) string {
	return filepath.Join(root, name)
}

func gcsURI(bucket, prefix, name string) string {
	return "gs://" + bucket + "/" + path.Join(prefix, name)
}

// Open creates the backend for a configured kind and root. The returned close
// function releases any client the backend holds and is never nil.
func Open(ctx context.Context, kind Kind, root string) (Backend, func() error, error) {
	switch kind {
	case KindGCS:
		g, err := NewGCS(ctx, root)
		if err != nil {
			return nil, nil, fmt.Errorf("Open: %w", err)
		}
		return g, g.Close, nil
	case KindLocal, "":
		return NewLocal(root), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("Open: unsupported storage type %q", kind)
	}
}
