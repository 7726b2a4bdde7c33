// Package blob stores opaque objects by key. Cloud backups are written
// through it; the driver is chosen by BLOB_DRIVER.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a Store implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverGCS        Driver = "gcs"
	DriverMemory     Driver = "memory"
)

// ErrNotFound is returned by Get when no object has the key.
var ErrNotFound = errors.New("blob: not found")

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Store is the minimal object storage surface used by backups. Put replaces
// any existing object with the same key. List returns keys in ascending
// order.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Delete(ctx context.Context, key string) error
	Driver() Driver
}

// Config selects and configures a Store.
type Config struct {
	Driver Driver

	FSRoot string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	GCSBucket      string
	GCSCredentials string
}

// Open returns the Store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverGCS:
		return NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentials)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("blob.Open: unknown driver %q", cfg.Driver)
}

// cleanKey rejects keys that are empty, absolute or escape the store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("blob: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob: absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("blob: key %q escapes root", key)
	}
	return clean, nil
}
