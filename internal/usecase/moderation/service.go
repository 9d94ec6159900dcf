package moderation

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	dommod "github.com/kopimap/kopimap-api/internal/domain/moderation"
	"github.com/kopimap/kopimap-api/internal/metrics"
)

// DefaultTopK is how many of the highest-scoring classes are kept.
const DefaultTopK = 3

// DefaultMaxBytes bounds the decoded image size.
const DefaultMaxBytes = 5 << 20

// Config tunes the verdict.
type Config struct {
	Threshold float64
	TopK      int
	MaxBytes  int
}

// Service classifies inline images and decides whether they are safe to show.
type Service struct {
	classifier Classifier
	cfg        Config
	logger     *zap.Logger
}

// New creates a moderation service.
func New(classifier Classifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = dommod.DefaultThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{classifier: classifier, cfg: cfg, logger: logger}
}

// Moderate decodes a base64 data URL, classifies it and returns the verdict
// over the top-K predictions.
func (s *Service) Moderate(ctx context.Context, imageBase64 string) (dommod.Verdict, error) {
	img, err := dommod.ParseDataURL(imageBase64)
	if err != nil {
		return dommod.Verdict{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if len(img.Data) > s.cfg.MaxBytes {
		return dommod.Verdict{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidInput, s.cfg.MaxBytes)
	}

	preds, err := s.classifier.Classify(ctx, img)
	if err != nil {
		metrics.ModerationTotal.WithLabelValues("error").Inc()
		return dommod.Verdict{}, fmt.Errorf("classify image: %w", err)
	}

	v := dommod.Evaluate(topK(preds, s.cfg.TopK), s.cfg.Threshold)
	if v.IsSafe {
		metrics.ModerationTotal.WithLabelValues("safe").Inc()
	} else {
		metrics.ModerationTotal.WithLabelValues("unsafe").Inc()
		s.logger.Info("Unsafe image rejected",
			zap.String("classifier", s.classifier.Name()),
			zap.Any("predictions", v.Predictions),
		)
	}
	return v, nil
}

// topK returns the k most probable predictions, highest first.
func topK(preds []dommod.Prediction, k int) []dommod.Prediction {
	out := slices.Clone(preds)
	slices.SortStableFunc(out, func(a, b dommod.Prediction) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
