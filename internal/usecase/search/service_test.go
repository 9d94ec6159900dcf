package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/policy"
	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	"github.com/kopimap/kopimap-api/internal/metrics"
	"github.com/kopimap/kopimap-api/internal/ratelimit"
)

// --- Mocks ---

type mockRepo struct {
	page   result.Page
	err    error
	called bool
	last   request.Compiled
}

func (m *mockRepo) Search(_ context.Context, c *request.Compiled) (result.Page, error) {
	m.called = true
	m.last = *c
	return m.page, m.err
}

type mockLimiter struct {
	decision ratelimit.Decision
	clients  []string
}

func (m *mockLimiter) Allow(_ context.Context, clientID string) ratelimit.Decision {
	m.clients = append(m.clients, clientID)
	return m.decision
}

func newService(repo Repository, lim Limiter) *Service {
	return New(repo, request.NewCompiler(policy.NewOpen("v1")), lim, nil)
}

// --- Tests ---

func TestSearch_CompilesAndDelegates(t *testing.T) {
	want := result.New([]result.Hit{{"id": "c1"}}, 1, 2, 10, 3)
	repo := &mockRepo{page: want}
	svc := newService(repo, &mockLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 99}})

	ps := params.Of("q", "latte", "vibe", "Cozy", "page", "2", "hitsPerPage", "10")
	page, err := svc.Search(context.Background(), "1.2.3.4", ps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.called {
		t.Fatal("expected repo to be called")
	}
	if repo.last.Term() != "latte" {
		t.Errorf("term = %q, want latte", repo.last.Term())
	}
	if got := repo.last.FilterStrings(); len(got) != 1 || got[0] != "vibe = 'Cozy'" {
		t.Errorf("filters = %v", got)
	}
	if repo.last.Offset() != 10 || repo.last.Limit() != 10 {
		t.Errorf("offset/limit = %d/%d, want 10/10", repo.last.Offset(), repo.last.Limit())
	}
	if page.TotalHits() != 1 || len(page.Hits()) != 1 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSearch_DeniedNeverCallsBackend(t *testing.T) {
	repo := &mockRepo{}
	lim := &mockLimiter{decision: ratelimit.Decision{RetryAfter: 2500 * time.Millisecond}}
	svc := newService(repo, lim)

	before := testutil.ToFloat64(metrics.RateLimitDecisionsTotal.WithLabelValues("denied"))

	_, err := svc.Search(context.Background(), "9.9.9.9", params.Of("q", "x"))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *domain.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %T", err)
	}
	if rl.RetryAfterSec != 3 {
		t.Errorf("RetryAfterSec = %d, want 3", rl.RetryAfterSec)
	}
	if repo.called {
		t.Error("backend must not be called for a denied client")
	}
	if len(lim.clients) != 1 || lim.clients[0] != "9.9.9.9" {
		t.Errorf("limiter saw %v", lim.clients)
	}

	after := testutil.ToFloat64(metrics.RateLimitDecisionsTotal.WithLabelValues("denied"))
	if after-before != 1 {
		t.Errorf("denied counter delta = %v, want 1", after-before)
	}
}

func TestSearch_NoLimiter(t *testing.T) {
	repo := &mockRepo{}
	svc := newService(repo, nil)

	if _, err := svc.Search(context.Background(), "", params.Of()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.called {
		t.Error("expected repo to be called")
	}
}

func TestSearch_BackendError(t *testing.T) {
	repo := &mockRepo{err: domain.ErrBackend}
	svc := newService(repo, &mockLimiter{decision: ratelimit.Decision{Allowed: true}})

	_, err := svc.Search(context.Background(), "c", params.Of())
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestSearch_MalformedParamsStillSearch(t *testing.T) {
	repo := &mockRepo{}
	svc := newService(repo, &mockLimiter{decision: ratelimit.Decision{Allowed: true}})

	ps := params.Of("minRating", "abc", "lat", "x", "lng", "103.8", "page", "-4")
	if _, err := svc.Search(context.Background(), "c", ps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.last.Filters()) != 0 {
		t.Errorf("expected no filters, got %v", repo.last.FilterStrings())
	}
	if repo.last.Sort() != nil {
		t.Errorf("expected no sort, got %v", repo.last.Sort())
	}
	if repo.last.Page() != 1 {
		t.Errorf("page = %d, want 1", repo.last.Page())
	}
}
