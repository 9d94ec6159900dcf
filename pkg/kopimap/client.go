package kopimap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	dbRedis "github.com/kopimap/kopimap-api/internal/db/redis"
	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/policy"
	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	"github.com/kopimap/kopimap-api/internal/ratelimit"
	caferepo "github.com/kopimap/kopimap-api/internal/repository/cafe"
	"github.com/kopimap/kopimap-api/internal/repository/cafecache"
	cafeuc "github.com/kopimap/kopimap-api/internal/usecase/cafe"
	healthuc "github.com/kopimap/kopimap-api/internal/usecase/health"
	searchuc "github.com/kopimap/kopimap-api/internal/usecase/search"
)

const (
	defaultIndex            = "cafes"
	defaultTimeout          = 5 * time.Second
	defaultReadinessTimeout = 10 * time.Second
	policyVersion           = "sdk"
)

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Search(ctx context.Context, clientID string, ps params.Set) (result.Page, error)
}

type cafeUseCase interface {
	Get(ctx context.Context, id string) (domcafe.Cafe, error)
	Update(ctx context.Context, payload map[string]any) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Client is the kopimap SDK entry point.
type Client struct {
	store     *dbRedis.Store
	backend   pinger
	searchSvc searchUseCase
	cafeSvc   cafeUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client and checks that the search backend answers.
// The provided context bounds the readiness checks.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		index:   defaultIndex,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.host == "" {
		return nil, errors.New("kopimap: search backend address required (use WithMeilisearch)")
	}

	compiler, err := buildCompiler(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	meili := meilisearch.New(cfg.host, meilisearch.WithAPIKey(cfg.apiKey))
	cafes := caferepo.New(meili.Index(cfg.index), meili, caferepo.Config{Timeout: cfg.timeout}, caferepo.Metrics{})
	if err := cafes.Ping(ctx); err != nil {
		return nil, fmt.Errorf("kopimap: search backend not ready: %w", err)
	}

	var store *dbRedis.Store
	if len(cfg.redisAddrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("kopimap: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("kopimap: redis not ready: %w", err)
		}
	}

	return wireClient(cfg, compiler, cafes, store, obs)
}

func buildCompiler(cfg *clientConfig) (*request.Compiler, error) {
	mode := policy.AllowList
	if cfg.openFilters {
		mode = policy.Open
	}
	p, err := policy.New(mode, policyVersion, cfg.filterAttrs)
	if err != nil {
		return nil, fmt.Errorf("kopimap: %w", err)
	}
	return request.NewCompiler(p).WithPagination(cfg.defaultHits, cfg.maxHits), nil
}

func wireClient(
	cfg *clientConfig,
	compiler *request.Compiler,
	cafes *caferepo.Repo,
	store *dbRedis.Store,
	obs *observer,
) (*Client, error) {
	// Pass nil interface (not typed nil pointer) when limiting is off.
	var limiter searchuc.Limiter
	if cfg.limitCapacity > 0 {
		mem, err := ratelimit.NewMemory(ratelimit.Config{
			Window:   cfg.limitWindow,
			Capacity: cfg.limitCapacity,
		})
		if err != nil {
			return nil, fmt.Errorf("kopimap: %w", err)
		}
		limiter = mem
	}

	var repo cafeuc.Repository = cafes
	var health *healthuc.Service
	if store != nil {
		repo = cafecache.New(cafes, store, cfg.cacheTTL, nil, zap.NewNop())
		health = healthuc.New(cafes, store)
	} else {
		health = healthuc.New(cafes, nil)
	}

	return &Client{
		store:     store,
		backend:   cafes,
		searchSvc: searchuc.New(cafes, compiler, limiter, nil),
		cafeSvc:   cafeuc.New(repo, nil, nil),
		healthSvc: health,
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks search backend connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.backend.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search runs a cafe search on behalf of clientID. Repeated keys keep their
// last value; use SearchQuery when parameter order matters.
func (c *Client) Search(ctx context.Context, clientID string, query url.Values) (SearchPage, error) {
	return c.search(ctx, clientID, params.FromValues(query))
}

// SearchQuery runs a cafe search from a raw query string such as
// "q=latte&wifi=true&hitsPerPage=10".
func (c *Client) SearchQuery(ctx context.Context, clientID, rawQuery string) (SearchPage, error) {
	return c.search(ctx, clientID, params.Parse(rawQuery))
}

func (c *Client) search(ctx context.Context, clientID string, ps params.Set) (_ SearchPage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	if clientID == "" {
		clientID = ratelimit.AnonymousClient
	}
	page, err := c.searchSvc.Search(ctx, clientID, ps)
	if err != nil {
		return SearchPage{}, err
	}
	return pageFromResult(&page), nil
}

// Cafe returns the stored document for id.
func (c *Client) Cafe(ctx context.Context, id string) (_ map[string]any, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get_cafe", start, err) }()

	cafe, err := c.cafeSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cafe.Fields(), nil
}

// UpdateCafe merges fields into the cafe named by fields["place_id"].
func (c *Client) UpdateCafe(ctx context.Context, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("update_cafe", start, err) }()

	return c.cafeSvc.Update(ctx, fields)
}
