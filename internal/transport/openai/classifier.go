package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/domain/moderation"
)

const classifyPrompt = `Classify this image for content moderation.
Reply with a JSON object {"predictions": [{"className": string, "probability": number}]}
covering exactly the classes Drawing, Hentai, Neutral, Porn, Sexy.
Probabilities are between 0 and 1 and sum to 1.`

// Classifier is a vision-model image classifier using the OpenAI-compatible
// chat API.
type Classifier struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the vision provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewClassifier creates an OpenAI-compatible vision classifier.
func NewClassifier(cfg *Config) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Classifier{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: cfg.Logger,
	}
}

// Classify asks the model for class probabilities of img.
func (c *Classifier) Classify(ctx context.Context, img moderation.Image) ([]moderation.Prediction, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: classifyPrompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    img.DataURL(),
						Detail: openai.ImageURLDetailLow,
					},
				},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty classifier response: %w", domain.ErrModeration)
	}

	preds, err := parsePredictions(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Unparseable classifier output", zap.String("model", c.model), zap.Error(err))
		return nil, fmt.Errorf("classifier output: %w: %w", domain.ErrModeration, err)
	}
	return preds, nil
}

// Name identifies the driver in logs.
func (c *Classifier) Name() string { return "openai" }

func parsePredictions(content string) ([]moderation.Prediction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")

	var parsed struct {
		Predictions []moderation.Prediction `json:"predictions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(parsed.Predictions) == 0 {
		return nil, fmt.Errorf("no predictions")
	}
	for _, p := range parsed.Predictions {
		if p.Probability < 0 || p.Probability > 1 {
			return nil, fmt.Errorf("probability %v for %q out of range", p.Probability, p.ClassName)
		}
	}
	return parsed.Predictions, nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrModeration.
func parseAPIError(err error) error {
	wrap := domain.ErrModeration

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("vision API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("vision API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("vision API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("vision request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
