package journal

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned by a create-only Put when the key is taken.
	ErrExists = errors.New("object already exists")
)

// PutOptions controls optional behavior for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// CreateOnly makes Put fail with ErrExists instead of overwriting.
	CreateOnly bool
}

// ObjectInfo is a single entry returned from List.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store is the object storage abstraction the journal writes records to.
// Implementations exist for S3, Azure Blob Storage, GCS and memory.
type Store interface {
	// Put writes an object.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	// Get retrieves an object. Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all objects under the given prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Name returns the store name for logging.
	Name() string
}

// Config holds the configuration used by NewStore.
type Config struct {
	Name           string
	Type           string // "memory", "s3", "azure", "gcs"
	Bucket         string
	Region         string
	Prefix         string
	StorageAccount string
	ContainerName  string
	MaxRetries     int
	RetryBackoff   string // "exponential" | "linear"
}
