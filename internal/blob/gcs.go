package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS returns a GCS store. credentialsFile may be empty to use application
// default credentials; extra client options are passed through.
func NewGCS(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blob.NewGCS: bucket required")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob.NewGCS: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Driver() Driver { return DriverGCS }

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	w := g.client.Bucket(g.bucket).Object(k).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("blob.GCS.Put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("blob.GCS.Put %s: close: %w", key, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(g.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("blob.GCS.Get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blob.GCS.Get %s: %w", key, err)
	}
	return rc, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blob.GCS.List: %w", err)
		}
		out = append(out, Info{Key: attrs.Name, Size: attrs.Size, LastModified: attrs.Updated.UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = g.client.Bucket(g.bucket).Object(k).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("blob.GCS.Delete %s: %w", key, err)
	}
	return nil
}

// Close releases the client's connections.
func (g *GCS) Close() error { return g.client.Close() }
