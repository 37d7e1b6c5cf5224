package delivery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ediContentType = "application/edi-x12"

// ObjectStoreConfig holds connection settings for an S3-compatible
// object store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseTLS    bool
	Region    string
}

// MinioWriter implements ObjectWriter over any S3-compatible endpoint.
type MinioWriter struct {
	client *minio.Client
}

// NewMinioWriter connects to the configured object store endpoint.
func NewMinioWriter(cfg *ObjectStoreConfig) (*MinioWriter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}
	return &MinioWriter{client: client}, nil
}

// PutObject implements ObjectWriter.
func (w *MinioWriter) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := w.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ediContentType})
	if err != nil {
		return fmt.Errorf("putting object %s/%s: %w", bucket, key, err)
	}
	return nil
}
