package cafe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/kopimap/kopimap-api/internal/domain"
	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/cafe/patch"
	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
)

// Backend operation labels.
const (
	opSearch = "search"
	opGet    = "get"
	opUpdate = "update"
	opHealth = "health"
)

// index is the consumer interface over a Meilisearch index (ISP).
type index interface {
	SearchWithContext(ctx context.Context, query string, req *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error)
	GetDocumentWithContext(ctx context.Context, id string, q *meilisearch.DocumentQuery, dst interface{}) error
	UpdateDocumentsWithContext(ctx context.Context, docs interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
}

// healthChecker reports backend availability.
type healthChecker interface {
	HealthWithContext(ctx context.Context) (*meilisearch.Health, error)
}

// Config holds repository options.
type Config struct {
	// Timeout bounds each backend call. Zero means no extra deadline.
	Timeout time.Duration
	// MaxQPS throttles outgoing calls. Zero disables throttling.
	MaxQPS float64
	// Burst is the throttle bucket size (default 1 when MaxQPS is set).
	Burst int
}

// Metrics are the backend collectors. Nil fields are skipped.
type Metrics struct {
	Requests *prometheus.CounterVec   // labels: op, status
	Duration *prometheus.HistogramVec // labels: op
}

// Repo stores and searches cafe documents in Meilisearch.
type Repo struct {
	index    index
	health   healthChecker
	timeout  time.Duration
	throttle *rate.Limiter
	metrics  Metrics
}

// New creates a cafe repository over idx. health may be nil.
func New(idx index, health healthChecker, cfg Config, m Metrics) *Repo {
	r := &Repo{index: idx, health: health, timeout: cfg.Timeout, metrics: m}
	if cfg.MaxQPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		r.throttle = rate.NewLimiter(rate.Limit(cfg.MaxQPS), burst)
	}
	return r
}

// Search runs a compiled search and returns one page of hits.
func (r *Repo) Search(ctx context.Context, c *request.Compiled) (result.Page, error) {
	req := &meilisearch.SearchRequest{
		Limit:                int64(c.Limit()),
		Offset:               int64(c.Offset()),
		Sort:                 c.Sort(),
		AttributesToRetrieve: c.AttributesToRetrieve(),
	}
	if fs := c.FilterStrings(); len(fs) > 0 {
		req.Filter = fs
	}

	var resp *meilisearch.SearchResponse
	err := r.call(ctx, opSearch, func(ctx context.Context) error {
		var err error
		resp, err = r.index.SearchWithContext(ctx, c.Term(), req)
		return err
	})
	if err != nil {
		return result.Page{}, fmt.Errorf("search cafes: %w: %w", domain.ErrBackend, err)
	}

	hits := make([]result.Hit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if doc, ok := h.(map[string]interface{}); ok {
			hits = append(hits, doc)
		}
	}
	return result.New(hits, resp.EstimatedTotalHits, c.Page(), c.HitsPerPage(), resp.ProcessingTimeMs), nil
}

// GetByID fetches one cafe document.
func (r *Repo) GetByID(ctx context.Context, id string) (domcafe.Cafe, error) {
	var doc map[string]interface{}
	err := r.call(ctx, opGet, func(ctx context.Context) error {
		return r.index.GetDocumentWithContext(ctx, id, nil, &doc)
	})
	if err != nil {
		if isNotFound(err) {
			return domcafe.Cafe{}, fmt.Errorf("cafe %q: %w", id, domain.ErrNotFound)
		}
		return domcafe.Cafe{}, fmt.Errorf("get cafe %q: %w: %w", id, domain.ErrBackend, err)
	}
	return domcafe.Reconstruct(doc), nil
}

// Update merges the patch into the stored document. The backend applies it
// asynchronously; the returned task uid identifies the enqueued update.
func (r *Repo) Update(ctx context.Context, p patch.Patch) (int64, error) {
	docs := []map[string]any{p.Document()}

	var task *meilisearch.TaskInfo
	err := r.call(ctx, opUpdate, func(ctx context.Context) error {
		var err error
		task, err = r.index.UpdateDocumentsWithContext(ctx, &docs, domcafe.FieldID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("update cafe %q: %w: %w", p.ID(), domain.ErrBackend, err)
	}
	if task == nil {
		return 0, nil
	}
	return task.TaskUID, nil
}

// Ping checks backend availability.
func (r *Repo) Ping(ctx context.Context) error {
	if r.health == nil {
		return nil
	}
	return r.call(ctx, opHealth, func(ctx context.Context) error {
		h, err := r.health.HealthWithContext(ctx)
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}
		if h == nil || h.Status != "available" {
			return fmt.Errorf("search backend unavailable")
		}
		return nil
	})
}

func (r *Repo) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.throttle != nil {
		if err := r.throttle.Wait(ctx); err != nil {
			r.observe(op, "error", 0)
			return fmt.Errorf("throttle: %w", err)
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.observe(op, "ok", elapsed)
	case isNotFound(err):
		r.observe(op, "not_found", elapsed)
	default:
		r.observe(op, "error", elapsed)
	}
	return err
}

func (r *Repo) observe(op, status string, elapsed time.Duration) {
	if r.metrics.Requests != nil {
		r.metrics.Requests.WithLabelValues(op, status).Inc()
	}
	if r.metrics.Duration != nil && elapsed > 0 {
		r.metrics.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func isNotFound(err error) bool {
	var me *meilisearch.Error
	return errors.As(err, &me) && me.StatusCode == http.StatusNotFound
}
