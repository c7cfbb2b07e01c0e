package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores files as objects under a prefix in a Cloud Storage bucket.
// It assumes Application Default Credentials unless client options say otherwise.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a backend for a root like "gs://bucket/exports".
func NewGCS(ctx context.Context, root string, opts ...option.ClientOption) (*GCS, error) {
	bucket, prefix, err := ParseGCSURI(root)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: %w", err)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}

	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GCS) objectName(name string) string {
	return path.Join(g.prefix, name)
}

func (g *GCS) Location(name string) string {
	return gcsURI(g.bucket, g.prefix, name)
}

func (g *GCS) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(g.objectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("GCS.Read %s: %w", g.Location(name), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GCS.Read: open object reader %s: %w", g.Location(name), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("GCS.Read: read object %s: %w", g.Location(name), err)
	}
	return data, nil
}

func (g *GCS) Write(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.objectName(name)).NewWriter(ctx)
	w.ContentType = contentType(name)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCS.Write: copy to %s: %w", g.Location(name), err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCS.Write: finalize upload %s: %w", g.Location(name), err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context) ([]Object, error) {
	q := &storage.Query{Delimiter: "/"}
	if g.prefix != "" {
		q.Prefix = strings.TrimSuffix(g.prefix, "/") + "/"
	}

	var objects []Object
	it := g.client.Bucket(g.bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GCS.List: iterating gs://%s/%s: %w", g.bucket, q.Prefix, err)
		}
		// Directory placeholders come back with only Prefix set.
		if attrs.Name == "" {
			continue
		}
		objects = append(objects, Object{
			Name:    path.Base(attrs.Name),
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return objects, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

// ParseGCSURI splits "gs://bucket/some/prefix" into bucket and prefix.
// The gs:// scheme is optional; the prefix may be empty.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(uri), "gs://")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %q", uri)
	}

	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
