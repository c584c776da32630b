package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// gcsStore implements Store for Google Cloud Storage.
type gcsStore struct {
	client *gcsstorage.Client
	bucket string
	prefix string
	name   string
}

// newGCSStore constructs a GCS-backed Store using Application Default
// Credentials.
func newGCSStore(cfg Config) (Store, error) {
	client, err := gcsstorage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &gcsStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
		name:   cfg.Name,
	}, nil
}

func (s *gcsStore) Name() string {
	return s.name
}

func (s *gcsStore) obj(key string) *gcsstorage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + key)
}

func (s *gcsStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	o := s.obj(key)
	if opts.CreateOnly {
		o = o.If(gcsstorage.Conditions{DoesNotExist: true})
	}

	w := o.NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if opts.CreateOnly && isGCSPreconditionFailed(err) {
			return fmt.Errorf("gcs write %q: %w", key, ErrExists)
		}
		return fmt.Errorf("gcs close writer %q: %w", key, err)
	}
	return nil
}

func (s *gcsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.obj(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs NewReader %q: %w", key, err)
	}
	return reader, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	if err := s.obj(key).Delete(ctx); err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("gcs Delete %q: %w", key, err)
	}
	return nil
}

func (s *gcsStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcsstorage.Query{
		Prefix: s.prefix + prefix,
	})

	var results []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs List prefix %q: %w", prefix, err)
		}
		results = append(results, ObjectInfo{
			Key:  strings.TrimPrefix(attrs.Name, s.prefix),
			Size: attrs.Size,
		})
	}
	return results, nil
}

// isGCSPreconditionFailed checks for a 412 without importing googleapi.
func isGCSPreconditionFailed(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "conditionNotMet") ||
		strings.Contains(msg, "Precondition Failed") ||
		strings.Contains(msg, "412")
}
