package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// WebhookArchive stores raw webhook bodies in a MinIO bucket.
type WebhookArchive struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
	newID       func() uuid.UUID
}

// NewWebhookArchive creates the archive client. It does not contact the
// server; call EnsureBucketExists at startup.
func NewWebhookArchive(cfg Config) (*WebhookArchive, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &WebhookArchive{
		client:      client,
		bucket:      cfg.GetMinioBucketWebhookArchive(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
		newID:       uuid.New,
	}, nil
}

// EnsureBucketExists creates the archive bucket if it doesn't exist.
func (a *WebhookArchive) EnsureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}

	return nil
}

// ArchiveWebhook uploads body and returns its object key.
func (a *WebhookArchive) ArchiveWebhook(ctx context.Context, event string, receivedAt time.Time, body []byte) (string, error) {
	if a.maxFileSize > 0 && int64(len(body)) > a.maxFileSize {
		return "", fmt.Errorf("webhook body of %d bytes exceeds archive limit of %d", len(body), a.maxFileSize)
	}

	key := ArchiveKey(event, receivedAt, a.newID())
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: archiveContentType,
		UserMetadata: map[string]string{
			"event":       event,
			"received-at": receivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive webhook %s: %w", key, err)
	}
	return key, nil
}
