package nsfw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/domain/moderation"
)

// Config holds the classifier service settings.
type Config struct {
	// URL is the classify endpoint; the image is POSTed as the raw body.
	URL     string
	Timeout time.Duration
}

// Client calls an HTTP NSFW image classification service that answers with
// {"predictions": [{"className": "...", "probability": 0.1}, ...]}.
type Client struct {
	url    string
	client *http.Client
}

type classifyResponse struct {
	Predictions []moderation.Prediction `json:"predictions"`
}

// New creates a classifier client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nsfw: url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{url: cfg.URL, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Classify returns class probabilities for img.
func (c *Client) Classify(ctx context.Context, img moderation.Image) ([]moderation.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request: %w: %w", domain.ErrModeration, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrModeration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier status %d: %w", resp.StatusCode, domain.ErrModeration)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w: %w", domain.ErrModeration, err)
	}
	if len(parsed.Predictions) == 0 {
		return nil, fmt.Errorf("empty classifier response: %w", domain.ErrModeration)
	}
	return parsed.Predictions, nil
}

// Name identifies the driver in logs.
func (c *Client) Name() string { return "http" }
