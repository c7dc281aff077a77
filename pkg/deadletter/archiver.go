package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GCSArchiverConfig holds settings for the dropped-record archive bucket.
type GCSArchiverConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSArchiver writes dropped dead-letter records to Cloud Storage as
// individual JSON objects, keyed by error kind so poison messages of the
// same shape group together.
type GCSArchiver struct {
	client GCSClient
	config GCSArchiverConfig
	logger zerolog.Logger
}

// NewGCSArchiver creates an archiver for the configured bucket.
func NewGCSArchiver(client GCSClient, config GCSArchiverConfig, logger zerolog.Logger) (*GCSArchiver, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSArchiver{
		client: client,
		config: config,
		logger: logger.With().Str("component", "GCSArchiver").Logger(),
	}, nil
}

// Archive writes one record to the bucket. The object name includes the
// original message id and a fresh UUID, so repeated drops never collide.
func (a *GCSArchiver) Archive(ctx context.Context, record Record) error {
	objectName := path.Join(
		a.config.ObjectPrefix,
		record.Error.Name,
		fmt.Sprintf("%s-%s.json", record.OriginalMessage.ID, uuid.New().String()),
	)

	writer := a.client.Bucket(a.config.BucketName).Object(objectName).NewWriter(ctx)
	if err := json.NewEncoder(writer).Encode(record); err != nil {
		_ = writer.Close()
		return fmt.Errorf("encode record to %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize archive object %s: %w", objectName, err)
	}

	a.logger.Info().Str("object_name", objectName).Int("retry_count", record.RetryCount).Msg("Dropped record archived.")
	return nil
}

// --- Cloud Storage client abstraction ---
// Narrow interfaces over the concrete client keep the archiver testable
// without a storage emulator.

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

// NewGCSClientAdapter makes the concrete *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

type gcsClientAdapter struct {
	client *storage.Client
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	return a.handle.NewWriter(ctx)
}
