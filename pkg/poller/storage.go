package poller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edilane/go-x12/pkg/delivery"
)

// LocalWriter implements DestinationWriter on the local filesystem,
// creating parent directories as needed.
type LocalWriter struct{}

// Write implements DestinationWriter.
func (LocalWriter) Write(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// BucketWriter implements DestinationWriter on an object store. The first
// path segment is the bucket name, the remainder the object key.
type BucketWriter struct {
	Objects delivery.ObjectWriter
}

// Write implements DestinationWriter.
func (w BucketWriter) Write(ctx context.Context, path string, data []byte) error {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return fmt.Errorf("destination path %q must be bucket/key", path)
	}
	return w.Objects.PutObject(ctx, bucket, key, data)
}
