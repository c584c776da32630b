package journal

import (
	"bytes"
	"fmt"
	"io"
)

// NewStore creates a Store based on cfg. Cloud backends are wrapped in a
// RetryStore when MaxRetries > 0.
func NewStore(cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Type {
	case "memory":
		return GetOrCreateMemoryStore(cfg.Name), nil
	case "s3":
		s, err = newS3Store(cfg)
	case "azure":
		s, err = newAzureStore(cfg)
	case "gcs":
		s, err = newGCSStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported journal type: %q (must be memory, s3, azure, or gcs)", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("creating %s journal store %q: %w", cfg.Type, cfg.Name, err)
	}

	if cfg.MaxRetries > 0 {
		s = NewRetryStore(s, cfg.MaxRetries, cfg.RetryBackoff)
	}
	return s, nil
}

// ValidateConfig reports missing settings for the selected backend without
// contacting it.
func ValidateConfig(cfg Config) error {
	switch cfg.Type {
	case "memory":
		return nil
	case "s3", "gcs":
		if cfg.Bucket == "" {
			return fmt.Errorf("journal type %q requires bucket", cfg.Type)
		}
	case "azure":
		if cfg.StorageAccount == "" || cfg.ContainerName == "" {
			return fmt.Errorf("journal type \"azure\" requires storage_account and container_name")
		}
	default:
		return fmt.Errorf("unsupported journal type: %q (must be memory, s3, azure, or gcs)", cfg.Type)
	}
	return nil
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
