package search

import (
	"context"

	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	"github.com/kopimap/kopimap-api/internal/ratelimit"
)

// Repository runs compiled searches against the cafe index.
type Repository interface {
	Search(ctx context.Context, c *request.Compiled) (result.Page, error)
}

// Limiter gates searches per client.
type Limiter interface {
	Allow(ctx context.Context, clientID string) ratelimit.Decision
}
