package moderation

import (
	"context"

	dommod "github.com/kopimap/kopimap-api/internal/domain/moderation"
)

// Classifier scores an image against the NSFW classes.
type Classifier interface {
	Classify(ctx context.Context, img dommod.Image) ([]dommod.Prediction, error)
	Name() string
}
