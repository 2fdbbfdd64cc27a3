package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

const pingTimeout = 5 * time.Second

var (
	errClientNotInitialized = errors.New("gcs client not initialized")
	errObjectTooLarge       = errors.New("gcs object exceeds size limit")
)

// Client downloads import sources from Cloud Storage.
type Client struct {
	svc           *storage.Service
	defaultBucket string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds a storage client using the configured credentials and verifies the bucket.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	client, err := newClient(ctx, cfg.BucketName, clientOptions(gcp)...)
	if err != nil {
		return nil, err
	}
	if client.defaultBucket != "" {
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("gcs health check failed: %w", err)
		}
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func newClient(ctx context.Context, bucket string, opts ...option.ClientOption) (*Client, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}
	return &Client{svc: svc, defaultBucket: strings.TrimSpace(bucket)}, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(storage.DevstorageReadOnlyScope)}
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// DefaultBucket is the bucket used when an object reference omits one.
func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// Ping checks the default bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.svc.Buckets.Get(c.defaultBucket).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("bucket %q does not exist", c.defaultBucket)
		}
		return fmt.Errorf("checking bucket %q: %w", c.defaultBucket, err)
	}
	return nil
}

// Download reads an object fully, refusing anything larger than maxBytes when maxBytes > 0.
func (c *Client) Download(ctx context.Context, bucket, object string, maxBytes int64) ([]byte, error) {
	if c == nil || c.svc == nil {
		return nil, errClientNotInitialized
	}
	if bucket == "" {
		bucket = c.defaultBucket
	}
	if bucket == "" || object == "" {
		return nil, errors.New("bucket and object are required")
	}

	resp, err := c.svc.Objects.Get(bucket, object).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object gs://%s/%s not found: %w", bucket, object, err)
		}
		return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, object, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, object, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errObjectTooLarge
	}
	return data, nil
}

// ParseObjectRef splits "gs://bucket/path" or "bucket/path" into its parts.
// A bare object name resolves against fallbackBucket.
func ParseObjectRef(ref, fallbackBucket string) (bucket, object string, err error) {
	trimmed := strings.TrimSpace(ref)
	hadScheme := strings.HasPrefix(trimmed, "gs://")
	trimmed = strings.TrimPrefix(trimmed, "gs://")
	if trimmed == "" {
		return "", "", errors.New("object reference is required")
	}

	parts := strings.SplitN(trimmed, "/", 2)
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	case !hadScheme && len(parts) == 1 && fallbackBucket != "":
		return fallbackBucket, parts[0], nil
	}
	return "", "", fmt.Errorf("invalid object reference %q", ref)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
