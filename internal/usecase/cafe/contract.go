package cafe

import (
	"context"

	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/cafe/patch"
)

// Repository reads and updates cafe documents.
type Repository interface {
	GetByID(ctx context.Context, id string) (domcafe.Cafe, error)
	// Update enqueues a partial update and returns the backend task id.
	Update(ctx context.Context, p patch.Patch) (int64, error)
}
