package kopimap

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kopimap/kopimap-api/internal/domain"
	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	healthuc "github.com/kopimap/kopimap-api/internal/usecase/health"
)

func TestNew_NoAddress(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no address provided")
	}
}

func TestNew_InvalidFilterAttribute(t *testing.T) {
	_, err := New(context.Background(),
		WithMeilisearch("http://localhost:7700", ""),
		WithAllowedFilters(map[string][]string{"bad attr": nil}),
	)
	if err == nil {
		t.Fatal("expected error for invalid attribute name")
	}
}

func TestOptions_Apply(t *testing.T) {
	cfg := &clientConfig{}
	opts := []Option{
		WithMeilisearch("http://meili:7700", "key"),
		WithIndex("cafes_v2"),
		WithTimeout(time.Second),
		WithOpenFilters(),
		WithPagination(10, 50),
		WithRateLimit(time.Minute, 30),
		WithRedisCache("localhost:6379", "pw", time.Hour),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.host != "http://meili:7700" || cfg.apiKey != "key" {
		t.Errorf("unexpected backend: %q %q", cfg.host, cfg.apiKey)
	}
	if cfg.index != "cafes_v2" || cfg.timeout != time.Second {
		t.Errorf("unexpected index/timeout: %q %v", cfg.index, cfg.timeout)
	}
	if !cfg.openFilters {
		t.Error("expected open filters")
	}
	if cfg.defaultHits != 10 || cfg.maxHits != 50 {
		t.Errorf("unexpected pagination: %d/%d", cfg.defaultHits, cfg.maxHits)
	}
	if cfg.limitWindow != time.Minute || cfg.limitCapacity != 30 {
		t.Errorf("unexpected rate limit: %v/%d", cfg.limitWindow, cfg.limitCapacity)
	}
	if len(cfg.redisAddrs) != 1 || cfg.cacheTTL != time.Hour {
		t.Errorf("unexpected cache: %v %v", cfg.redisAddrs, cfg.cacheTTL)
	}
}

func TestOptions_AllowedFiltersOverridesOpen(t *testing.T) {
	cfg := &clientConfig{}
	WithOpenFilters().apply(cfg)
	WithAllowedFilters(map[string][]string{"wifi": {"true", "false"}}).apply(cfg)

	if cfg.openFilters {
		t.Error("allowed filters must switch back to allowlist mode")
	}
	if _, err := buildCompiler(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_Search(t *testing.T) {
	var gotClient string
	var gotParams params.Set
	mock := &mockSearchUC{
		searchFn: func(_ context.Context, clientID string, ps params.Set) (result.Page, error) {
			gotClient = clientID
			gotParams = ps
			hits := []result.Hit{{"id": "c1"}, {"id": "c2"}}
			return result.New(hits, 45, 2, 20, 7), nil
		},
	}
	c := testClient(mock, nil)

	page, err := c.Search(context.Background(), "", url.Values{"q": {"latte"}, "wifi": {"true"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotClient != "anonymous" {
		t.Errorf("client id = %q, want anonymous", gotClient)
	}
	if gotParams.Value("q") != "latte" || gotParams.Value("wifi") != "true" {
		t.Errorf("unexpected params: %v", gotParams.Keys())
	}
	if len(page.Hits) != 2 || page.TotalHits != 45 || page.Page != 2 {
		t.Errorf("unexpected page: %+v", page)
	}
	if page.ProcessingTime != 7*time.Millisecond {
		t.Errorf("processing time = %v", page.ProcessingTime)
	}
	if page.Pages() != 3 {
		t.Errorf("pages = %d, want 3", page.Pages())
	}
}

func TestClient_SearchQuery_KeepsOrder(t *testing.T) {
	var keys []string
	mock := &mockSearchUC{
		searchFn: func(_ context.Context, _ string, ps params.Set) (result.Page, error) {
			keys = ps.Keys()
			return result.New(nil, 0, 1, 20, 0), nil
		},
	}
	c := testClient(mock, nil)

	page, err := c.SearchQuery(context.Background(), "job", "wifi=true&q=latte&vibe=Cozy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 3 || keys[0] != "wifi" || keys[1] != "q" || keys[2] != "vibe" {
		t.Errorf("keys = %v", keys)
	}
	if page.Hits == nil || page.Pages() != 0 {
		t.Errorf("unexpected empty page: %+v", page)
	}
}

func TestClient_Search_RateLimited(t *testing.T) {
	mock := &mockSearchUC{
		searchFn: func(_ context.Context, _ string, _ params.Set) (result.Page, error) {
			return result.Page{}, domain.NewRateLimited(12)
		},
	}
	c := testClient(mock, nil)

	_, err := c.Search(context.Background(), "job", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	d, ok := RetryAfter(err)
	if !ok || d != 12*time.Second {
		t.Errorf("RetryAfter = %v, %v", d, ok)
	}
}

func TestRetryAfter_OtherError(t *testing.T) {
	if _, ok := RetryAfter(errors.New("boom")); ok {
		t.Error("expected no retry hint")
	}
}

func TestClient_Cafe(t *testing.T) {
	mock := &mockCafeUC{
		getFn: func(_ context.Context, id string) (domcafe.Cafe, error) {
			if id != "c1" {
				return domcafe.Cafe{}, domain.ErrNotFound
			}
			return domcafe.Reconstruct(map[string]any{"id": "c1", "name": "Kopi"}), nil
		},
	}
	c := testClient(nil, mock)

	doc, err := c.Cafe(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["name"] != "Kopi" {
		t.Errorf("unexpected doc: %v", doc)
	}

	if _, err := c.Cafe(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_UpdateCafe(t *testing.T) {
	var got map[string]any
	mock := &mockCafeUC{
		updateFn: func(_ context.Context, payload map[string]any) error {
			got = payload
			return nil
		},
	}
	c := testClient(nil, mock)

	if err := c.UpdateCafe(context.Background(), map[string]any{"place_id": "c1", "wifi": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["place_id"] != "c1" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestClient_Ping(t *testing.T) {
	c := testClient(nil, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.backend = &mockPinger{err: domain.ErrBackend}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	c := testClient(nil, nil)
	c.healthSvc = &mockHealthUC{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{
			healthuc.ComponentSearch: healthuc.CheckOK,
			healthuc.ComponentRedis:  healthuc.CheckError,
		},
	}}

	h := c.Health(context.Background())
	if h.Status != "degraded" {
		t.Errorf("status = %q", h.Status)
	}
	if h.Checks["redis"] != "error" || h.Checks["search"] != "ok" {
		t.Errorf("unexpected checks: %v", h.Checks)
	}
}

func TestClient_Close_NoStore(t *testing.T) {
	c := testClient(nil, nil)
	c.Close()
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock := &mockSearchUC{
		searchFn: func(_ context.Context, _ string, _ params.Set) (result.Page, error) {
			return result.Page{}, domain.NewRateLimited(1)
		},
	}
	c := testClient(mock, nil)
	c.obs = obs

	_, _ = c.Search(context.Background(), "job", nil)
	_ = c.Ping(context.Background())

	if got := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("search", "rate_limited")); got != 1 {
		t.Errorf("search rate_limited = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("ping", "ok")); got != 1 {
		t.Errorf("ping ok = %v, want 1", got)
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.metrics.operations != second.metrics.operations {
		t.Error("expected the already registered collector to be reused")
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("search", time.Now(), nil)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.NewRateLimited(1), "rate_limited"},
		{domain.ErrNotFound, "not_found"},
		{domain.ErrBackend, "error"},
	}
	for _, tt := range tests {
		if got := status(tt.err); got != tt.want {
			t.Errorf("status(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
