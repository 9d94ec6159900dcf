package cafe

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/cafe/patch"
	"github.com/kopimap/kopimap-api/internal/validation"
)

type lookup struct {
	ID string `json:"id" validate:"required,max=511,cafeid"`
}

// Service fetches and updates cafe documents.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a cafe service.
func New(repo Repository, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, validate: validate, logger: logger}
}

// Get returns the cafe with the given id.
func (s *Service) Get(ctx context.Context, id string) (domcafe.Cafe, error) {
	if err := s.validate.Struct(lookup{ID: id}); err != nil {
		return domcafe.Cafe{}, fmt.Errorf("%w: %s", domain.ErrInvalidInput, validation.Message(err))
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domcafe.Cafe{}, fmt.Errorf("get cafe: %w", err)
	}
	return c, nil
}

// Update merges payload into the cafe named by payload["place_id"].
// Fields not present in payload are left untouched.
func (s *Service) Update(ctx context.Context, payload map[string]any) error {
	p, err := patch.New(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if len(p.Fields()) == 0 {
		return fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}

	taskUID, err := s.repo.Update(ctx, p)
	if err != nil {
		return fmt.Errorf("update cafe: %w", err)
	}
	s.logger.Info("Cafe update enqueued",
		zap.String("cafe_id", p.ID()),
		zap.Int("fields", len(p.Fields())),
		zap.Int64("task_uid", taskUID),
	)
	return nil
}
