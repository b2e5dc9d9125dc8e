package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Options selects and configures a Store.
type Options struct {
	Driver Driver
	// Root is the directory used by the fs driver.
	Root string
	// S3 configures the s3 driver. Prefix lets the data and outputs stores
	// share a bucket.
	S3 S3Config
}

// Open selects a Store implementation from opts. An empty driver means fs.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.Root)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// ReadAll fetches the full content stored under key.
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// PutBytes stores b under key, replacing previous content.
func PutBytes(ctx context.Context, store Store, key string, b []byte, contentType string) (Info, error) {
	return store.Put(ctx, key, bytes.NewReader(b), PutOptions{ContentType: contentType})
}
