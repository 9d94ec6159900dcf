package kopimap

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	host    string
	apiKey  string
	index   string
	timeout time.Duration

	openFilters   bool
	filterAttrs   map[string][]string
	defaultHits   int
	maxHits       int
	limitWindow   time.Duration
	limitCapacity int

	redisAddrs    []string
	redisPassword string
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMeilisearch sets the search backend address and API key.
func WithMeilisearch(host, apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.host = host
		c.apiKey = apiKey
	})
}

// WithIndex selects the cafe index. Default: "cafes".
func WithIndex(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.index = name
	})
}

// WithTimeout bounds each backend call. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithAllowedFilters restricts filterable attributes to attrs. An attribute
// mapped to an empty list accepts any value.
func WithAllowedFilters(attrs map[string][]string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openFilters = false
		c.filterAttrs = attrs
	})
}

// WithOpenFilters accepts any well-formed attribute as a filter.
// Use only when the index's filterable attributes are trusted.
func WithOpenFilters() Option {
	return optionFunc(func(c *clientConfig) {
		c.openFilters = true
	})
}

// WithPagination sets the default and maximum hits per page.
// Defaults: 20 and 100.
func WithPagination(defaultHits, maxHits int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultHits = defaultHits
		c.maxHits = maxHits
	})
}

// WithRateLimit enables an in-process sliding window of capacity searches per
// window for each client id passed to Search.
func WithRateLimit(window time.Duration, capacity int) Option {
	return optionFunc(func(c *clientConfig) {
		c.limitWindow = window
		c.limitCapacity = capacity
	})
}

// WithRedisCache caches cafe documents in Redis for ttl.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
