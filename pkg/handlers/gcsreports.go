package handlers

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSReportConfig locates rendered free reports in object storage.
type GCSReportConfig struct {
	BucketName string
	// PathTemplate receives the session ID.
	PathTemplate string
}

// NewGCSReportConfigDefaults provides the standard report layout for a
// bucket.
func NewGCSReportConfigDefaults(bucketName string) *GCSReportConfig {
	return &GCSReportConfig{
		BucketName:   bucketName,
		PathTemplate: "images_free_reports/sessions/%s/report.html",
	}
}

// GCSReportSource implements ReportSource over a GCS bucket of pre-rendered
// HTML reports.
type GCSReportSource struct {
	cfg    *GCSReportConfig
	client *storage.Client
}

func NewGCSReportSource(cfg *GCSReportConfig, client *storage.Client) (*GCSReportSource, error) {
	if cfg == nil || cfg.BucketName == "" {
		return nil, fmt.Errorf("report bucket name is required")
	}
	if client == nil {
		return nil, fmt.Errorf("storage client cannot be nil")
	}
	return &GCSReportSource{cfg: cfg, client: client}, nil
}

func (s *GCSReportSource) FetchReport(ctx context.Context, sessionID string) (string, error) {
	objectPath := fmt.Sprintf(s.cfg.PathTemplate, sessionID)
	reader, err := s.client.Bucket(s.cfg.BucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open report %s: %w", objectPath, err)
	}
	defer func() { _ = reader.Close() }()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read report %s: %w", objectPath, err)
	}
	return string(content), nil
}
