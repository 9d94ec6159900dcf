package bunny

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
)

// keySource resolves the storage zone access key (rotatable secret).
type keySource interface {
	Get(ctx context.Context, name string) (string, error)
}

// Config holds Bunny storage zone settings.
type Config struct {
	Zone string
	// Region is the storage region code ("sg", "ny", ...). Empty means the
	// main Falkenstein endpoint.
	Region string
	// AccessKeySecret names the secret holding the zone password.
	AccessKeySecret string
	// CDNHost is the pull zone hostname serving public URLs.
	CDNHost string
	// BaseURL overrides the storage endpoint (tests).
	BaseURL string
	Timeout time.Duration
	Backoff []time.Duration
}

// Client uploads objects to a Bunny storage zone.
type Client struct {
	baseURL string
	zone    string
	cdnHost string
	keyName string
	keys    keySource
	backoff []time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Bunny storage client.
func New(cfg Config, keys keySource, logger *zap.Logger) (*Client, error) {
	if cfg.Zone == "" {
		return nil, fmt.Errorf("bunny: zone is required")
	}
	if cfg.CDNHost == "" {
		return nil, fmt.Errorf("bunny: cdn host is required")
	}
	if cfg.BaseURL == "" {
		host := "storage.bunnycdn.com"
		if cfg.Region != "" && cfg.Region != "de" {
			host = cfg.Region + "." + host
		}
		cfg.BaseURL = "https://" + host
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}
	}
	if cfg.AccessKeySecret == "" {
		cfg.AccessKeySecret = "bunny_access_key"
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		zone:    cfg.Zone,
		cdnHost: cfg.CDNHost,
		keyName: cfg.AccessKeySecret,
		keys:    keys,
		backoff: cfg.Backoff,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

// Put stores data at key. Server errors are retried with backoff.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	accessKey, err := c.keys.Get(ctx, c.keyName)
	if err != nil {
		return fmt.Errorf("bunny access key: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := c.baseURL + "/" + c.zone + "/" + escapeKey(key)

	var lastErr error
	for attempt := 0; attempt <= len(c.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("bunny upload: %w", ctx.Err())
			case <-time.After(c.backoff[attempt-1]):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("AccessKey", accessKey)
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = int64(len(data))

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("do request: %w", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("bunny rejected access key: %w", domain.ErrStorage)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			c.logger.Warn("Bunny upload failed, retrying",
				zap.String("key", key), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			continue
		default:
			return fmt.Errorf("bunny upload status %d: %s: %w", resp.StatusCode, string(body), domain.ErrStorage)
		}
	}
	return fmt.Errorf("bunny upload: %w: %w", domain.ErrStorage, lastErr)
}

// PublicURL returns the CDN URL serving key.
func (c *Client) PublicURL(key string) string {
	return "https://" + c.cdnHost + "/" + escapeKey(key)
}

// Name identifies the driver in metrics.
func (c *Client) Name() string { return "bunny" }

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
