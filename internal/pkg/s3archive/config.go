package s3archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/andreluizvr/textora/internal/pkg/env"
)

// Config holds webhook archive storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("WEBHOOK_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when webhook archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when webhook archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when webhook archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if webhook archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates a standardized S3 object key for a webhook event
func (c *Config) GetObjectKey(provider, providerEventID string, receivedAt time.Time) string {
	// Format: webhooks/YYYY/MM/provider/event_id.json
	return fmt.Sprintf("webhooks/%04d/%02d/%s/%s.json",
		receivedAt.Year(), int(receivedAt.Month()), provider, providerEventID)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}
