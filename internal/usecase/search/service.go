package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	"github.com/kopimap/kopimap-api/internal/metrics"
)

// Service admits, compiles and executes cafe searches.
type Service struct {
	repo     Repository
	compiler *request.Compiler
	limiter  Limiter
	logger   *zap.Logger
}

// New creates a search service. limiter can be nil (no admission control).
func New(repo Repository, compiler *request.Compiler, limiter Limiter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, compiler: compiler, limiter: limiter, logger: logger}
}

// Search checks the client's budget, compiles the query parameters and runs
// the search. A denied client gets a *domain.RateLimitedError and the backend
// is never called.
func (s *Service) Search(ctx context.Context, clientID string, ps params.Set) (result.Page, error) {
	if s.limiter != nil {
		d := s.limiter.Allow(ctx, clientID)
		if !d.Allowed {
			metrics.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
			s.logger.Debug("Search rate limited",
				zap.String("client_id", clientID),
				zap.Duration("retry_after", d.RetryAfter),
			)
			return result.Page{}, domain.NewRateLimited(d.RetryAfterSeconds())
		}
		metrics.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
	}

	compiled := s.compiler.Compile(ps)
	metrics.SearchFilterExpressions.Observe(float64(len(compiled.Filters())))

	page, err := s.repo.Search(ctx, &compiled)
	if err != nil {
		return result.Page{}, fmt.Errorf("search: %w", err)
	}
	return page, nil
}

