package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the kopimap API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	CORS       CORSConfig       `yaml:"cors"`
	Search     SearchConfig     `yaml:"search"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Storage    StorageConfig    `yaml:"storage"`
	Moderation ModerationConfig `yaml:"moderation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Jobs       JobsConfig       `yaml:"jobs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// CORSConfig holds the browser origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAgeSec      int      `yaml:"max_age_sec"`
}

// SearchConfig holds Meilisearch and query compilation settings.
type SearchConfig struct {
	Host               string             `yaml:"host"`
	APIKey             string             `yaml:"api_key"`
	Index              string             `yaml:"index"`
	TimeoutMs          int                `yaml:"timeout_ms"`
	MaxQPS             float64            `yaml:"max_qps"` // 0 = unthrottled
	Burst              int                `yaml:"burst"`
	DefaultHitsPerPage int                `yaml:"default_hits_per_page"`
	MaxHitsPerPage     int                `yaml:"max_hits_per_page"`
	FilterPolicy       FilterPolicyConfig `yaml:"filter_policy"`
}

// FilterPolicyConfig selects which attributes clients may filter on.
type FilterPolicyConfig struct {
	Mode    string `yaml:"mode"` // allowlist (default) | open
	Version string `yaml:"version"`
	// Attributes maps attribute -> allowed values; an empty list accepts any value.
	Attributes map[string][]string `yaml:"attributes"`
}

// RateLimitConfig holds per-client search admission settings.
type RateLimitConfig struct {
	Driver     string `yaml:"driver"` // memory (default) | redis | off
	WindowSec  int    `yaml:"window_sec"`
	Capacity   int    `yaml:"capacity"`
	MaxClients int    `yaml:"max_clients"`
	Shards     int    `yaml:"shards"`
}

// RedisConfig holds the optional shared Redis connection.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a Redis connection is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

// CacheConfig holds the cafe document cache settings (requires Redis).
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// AuthConfig names the secrets protecting write endpoints.
type AuthConfig struct {
	UpdateKeySecret string `yaml:"update_key_secret"`
	JWTSecret       string `yaml:"jwt_secret"`
	JWTIssuer       string `yaml:"jwt_issuer"`
	JWTAudience     string `yaml:"jwt_audience"`
	JWTLeewaySec    int    `yaml:"jwt_leeway_sec"`
}

// SecretsConfig selects the secret provider.
type SecretsConfig struct {
	Provider string            `yaml:"provider"` // static (default) | aws
	TTLSec   int               `yaml:"ttl_sec"`
	Static   map[string]string `yaml:"static"`
	AWS      AWSSecretsConfig  `yaml:"aws"`
}

// AWSSecretsConfig holds Secrets Manager settings.
type AWSSecretsConfig struct {
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// StorageConfig holds review image storage settings.
type StorageConfig struct {
	Driver         string      `yaml:"driver"` // bunny | s3 | none (default)
	KeyPrefix      string      `yaml:"key_prefix"`
	MaxUploadBytes int64       `yaml:"max_upload_bytes"`
	Bunny          BunnyConfig `yaml:"bunny"`
	S3             S3Config    `yaml:"s3"`
}

// BunnyConfig holds Bunny storage zone settings.
type BunnyConfig struct {
	Zone            string `yaml:"zone"`
	Region          string `yaml:"region"`
	CDNHost         string `yaml:"cdn_host"`
	AccessKeySecret string `yaml:"access_key_secret"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// S3Config holds S3-compatible bucket settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BaseURL         string `yaml:"base_url"`
}

// ModerationConfig selects the image classifier.
type ModerationConfig struct {
	Driver    string                 `yaml:"driver"` // http | openai | none (default)
	Threshold float64                `yaml:"threshold"`
	TopK      int                    `yaml:"top_k"`
	MaxBytes  int                    `yaml:"max_bytes"`
	HTTP      NSFWServiceConfig      `yaml:"http"`
	OpenAI    OpenAIModerationConfig `yaml:"openai"`
}

// NSFWServiceConfig holds the HTTP classifier endpoint.
type NSFWServiceConfig struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// OpenAIModerationConfig holds the vision model settings.
type OpenAIModerationConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// JobsConfig holds cron specs for background maintenance. Empty disables a job.
type JobsConfig struct {
	LimiterSweep  string `yaml:"limiter_sweep"`
	SecretRefresh string `yaml:"secret_refresh"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it, applies defaults and
// validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173", "https://kopimap.com"}
	}

	if c.Search.Index == "" {
		c.Search.Index = "cafes"
	}
	if c.Search.TimeoutMs <= 0 {
		c.Search.TimeoutMs = 5000
	}
	if c.Search.DefaultHitsPerPage <= 0 {
		c.Search.DefaultHitsPerPage = 20
	}
	if c.Search.MaxHitsPerPage <= 0 {
		c.Search.MaxHitsPerPage = 100
	}
	if c.Search.FilterPolicy.Mode == "" {
		c.Search.FilterPolicy.Mode = "allowlist"
	}
	if c.Search.FilterPolicy.Version == "" {
		c.Search.FilterPolicy.Version = "v1"
	}

	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = "memory"
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = 60
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 100
	}
	if c.RateLimit.MaxClients <= 0 {
		c.RateLimit.MaxClients = 100_000
	}
	if c.RateLimit.Shards <= 0 {
		c.RateLimit.Shards = 32
	}

	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}

	if c.Secrets.Provider == "" {
		c.Secrets.Provider = "static"
	}
	if c.Secrets.TTLSec <= 0 {
		c.Secrets.TTLSec = 300
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "review-images"
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}

	if c.Moderation.Driver == "" {
		c.Moderation.Driver = "none"
	}
	if c.Moderation.Threshold <= 0 {
		c.Moderation.Threshold = 0.25
	}
	if c.Moderation.TopK <= 0 {
		c.Moderation.TopK = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.Host == "" {
		return fmt.Errorf("search.host is required")
	}
	if c.Search.MaxHitsPerPage < c.Search.DefaultHitsPerPage {
		return fmt.Errorf("search.max_hits_per_page (%d) must be >= default_hits_per_page (%d)",
			c.Search.MaxHitsPerPage, c.Search.DefaultHitsPerPage)
	}
	switch c.Search.FilterPolicy.Mode {
	case "allowlist", "open":
	default:
		return fmt.Errorf("search.filter_policy.mode must be \"allowlist\" or \"open\", got %q",
			c.Search.FilterPolicy.Mode)
	}

	switch c.RateLimit.Driver {
	case "memory", "off":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("rate_limit.driver \"redis\" requires redis.addrs")
		}
	default:
		return fmt.Errorf("rate_limit.driver must be \"memory\", \"redis\" or \"off\", got %q", c.RateLimit.Driver)
	}
	if c.RateLimit.MaxClients < c.RateLimit.Shards {
		return fmt.Errorf("rate_limit.max_clients (%d) must be >= shards (%d)",
			c.RateLimit.MaxClients, c.RateLimit.Shards)
	}

	if c.Cache.Enabled && !c.Redis.Enabled() {
		return fmt.Errorf("cache.enabled requires redis.addrs")
	}

	switch c.Secrets.Provider {
	case "static", "aws":
	default:
		return fmt.Errorf("secrets.provider must be \"static\" or \"aws\", got %q", c.Secrets.Provider)
	}

	switch c.Storage.Driver {
	case "none":
	case "bunny":
		if c.Storage.Bunny.Zone == "" || c.Storage.Bunny.CDNHost == "" {
			return fmt.Errorf("storage.bunny.zone and storage.bunny.cdn_host are required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.BaseURL == "" {
			return fmt.Errorf("storage.s3.bucket and storage.s3.base_url are required")
		}
	default:
		return fmt.Errorf("storage.driver must be \"bunny\", \"s3\" or \"none\", got %q", c.Storage.Driver)
	}

	switch c.Moderation.Driver {
	case "none":
	case "http":
		if c.Moderation.HTTP.URL == "" {
			return fmt.Errorf("moderation.http.url is required")
		}
	case "openai":
		if c.Moderation.OpenAI.APIKey == "" {
			return fmt.Errorf("moderation.openai.api_key is required")
		}
	default:
		return fmt.Errorf("moderation.driver must be \"http\", \"openai\" or \"none\", got %q", c.Moderation.Driver)
	}
	if c.Moderation.Threshold >= 1 {
		return fmt.Errorf("moderation.threshold must be below 1, got %v", c.Moderation.Threshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
