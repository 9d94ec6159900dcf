package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/config"
	dbRedis "github.com/kopimap/kopimap-api/internal/db/redis"
	"github.com/kopimap/kopimap-api/internal/domain/search/policy"
	"github.com/kopimap/kopimap-api/internal/domain/search/request"
	"github.com/kopimap/kopimap-api/internal/jobs"
	logpkg "github.com/kopimap/kopimap-api/internal/logger"
	"github.com/kopimap/kopimap-api/internal/metrics"
	"github.com/kopimap/kopimap-api/internal/ratelimit"
	caferepo "github.com/kopimap/kopimap-api/internal/repository/cafe"
	"github.com/kopimap/kopimap-api/internal/repository/cafecache"
	"github.com/kopimap/kopimap-api/internal/secrets"
	"github.com/kopimap/kopimap-api/internal/transport/bunny"
	chiTransport "github.com/kopimap/kopimap-api/internal/transport/chi"
	"github.com/kopimap/kopimap-api/internal/transport/nsfw"
	openaiMod "github.com/kopimap/kopimap-api/internal/transport/openai"
	"github.com/kopimap/kopimap-api/internal/transport/s3blob"
	cafeuc "github.com/kopimap/kopimap-api/internal/usecase/cafe"
	healthuc "github.com/kopimap/kopimap-api/internal/usecase/health"
	mediauc "github.com/kopimap/kopimap-api/internal/usecase/media"
	moderationuc "github.com/kopimap/kopimap-api/internal/usecase/moderation"
	searchuc "github.com/kopimap/kopimap-api/internal/usecase/search"
	"github.com/kopimap/kopimap-api/internal/validation"
	"github.com/kopimap/kopimap-api/internal/version"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kopimap API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("search_host", cfg.Search.Host),
		zap.String("search_index", cfg.Search.Index),
		zap.String("rate_limit_driver", cfg.RateLimit.Driver),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("moderation_driver", cfg.Moderation.Driver),
	)

	metrics.RegisterAppMetrics()
	ctx := context.Background()

	// Search backend
	meili := meilisearch.New(cfg.Search.Host, meilisearch.WithAPIKey(cfg.Search.APIKey))

	cafes := caferepo.New(meili.Index(cfg.Search.Index), meili, caferepo.Config{
		Timeout: time.Duration(cfg.Search.TimeoutMs) * time.Millisecond,
		MaxQPS:  cfg.Search.MaxQPS,
		Burst:   cfg.Search.Burst,
	}, caferepo.Metrics{
		Requests: metrics.SearchRequestsTotal,
		Duration: metrics.SearchRequestDuration,
	})

	// Optional shared Redis
	var store *dbRedis.Store
	if cfg.Redis.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
	}

	var cafeRepo cafeuc.Repository = cafes
	if cfg.Cache.Enabled {
		cafeRepo = cafecache.New(cafes, store, time.Duration(cfg.Cache.TTLSec)*time.Second,
			metrics.CafeCacheTotal, logger)
	}

	// Rate limiter
	limitCfg := ratelimit.Config{
		Window:     time.Duration(cfg.RateLimit.WindowSec) * time.Second,
		Capacity:   cfg.RateLimit.Capacity,
		MaxClients: cfg.RateLimit.MaxClients,
		Shards:     cfg.RateLimit.Shards,
	}
	// Pass nil interface (not typed nil pointer) when limiting is off.
	var limiter searchuc.Limiter
	var memLimiter *ratelimit.Memory
	switch cfg.RateLimit.Driver {
	case "memory":
		memLimiter, err = ratelimit.NewMemory(limitCfg)
		if err != nil {
			logger.Fatal("Invalid rate limit config", zap.Error(err))
		}
		limiter = memLimiter
	case "redis":
		rl, err := ratelimit.NewRedis(store, limitCfg, metrics.RateLimitErrorsTotal, logger)
		if err != nil {
			logger.Fatal("Invalid rate limit config", zap.Error(err))
		}
		limiter = rl
	}

	// Secrets
	var provider secrets.Provider
	switch cfg.Secrets.Provider {
	case "aws":
		provider, err = secrets.NewAWS(ctx, secrets.AWSConfig{
			Region:          cfg.Secrets.AWS.Region,
			Prefix:          cfg.Secrets.AWS.Prefix,
			Endpoint:        cfg.Secrets.AWS.Endpoint,
			AccessKeyID:     cfg.Secrets.AWS.AccessKeyID,
			SecretAccessKey: cfg.Secrets.AWS.SecretAccessKey,
		})
		if err != nil {
			logger.Fatal("Failed to create secrets provider", zap.Error(err))
		}
	default:
		provider = secrets.NewStatic(cfg.Secrets.Static)
	}
	secretCache := secrets.NewCache(provider, time.Duration(cfg.Secrets.TTLSec)*time.Second,
		metrics.SecretRefreshTotal, logger)

	// Use case services
	validate := validation.New()

	compiler, err := buildCompiler(cfg.Search)
	if err != nil {
		logger.Fatal("Invalid filter policy", zap.Error(err))
	}

	svc := chiTransport.Services{
		Search: searchuc.New(cafes, compiler, limiter, logger),
		Cafes:  cafeuc.New(cafeRepo, validate, logger),
	}

	blob, err := buildStore(ctx, cfg.Storage, secretCache, logger)
	if err != nil {
		logger.Fatal("Failed to create image store", zap.Error(err))
	}
	if blob != nil {
		svc.Media = mediauc.New(blob, mediauc.Config{
			KeyPrefix: cfg.Storage.KeyPrefix,
			MaxBytes:  cfg.Storage.MaxUploadBytes,
		}, validate, logger)
	}

	classifier, err := buildClassifier(cfg.Moderation, logger)
	if err != nil {
		logger.Fatal("Failed to create image classifier", zap.Error(err))
	}
	if classifier != nil {
		svc.Moderation = moderationuc.New(classifier, moderationuc.Config{
			Threshold: cfg.Moderation.Threshold,
			TopK:      cfg.Moderation.TopK,
			MaxBytes:  cfg.Moderation.MaxBytes,
		}, logger)
	}

	if store != nil {
		svc.Health = healthuc.New(cafes, store)
	} else {
		svc.Health = healthuc.New(cafes, nil)
	}

	// Create chi server
	server := chiTransport.NewServer(svc, secretCache, chiTransport.Options{
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		CORS: chiTransport.CORSOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAgeSec:      cfg.CORS.MaxAgeSec,
		},
		Auth: chiTransport.AuthOptions{
			UpdateKeySecret: cfg.Auth.UpdateKeySecret,
			JWTSecret:       cfg.Auth.JWTSecret,
			JWTIssuer:       cfg.Auth.JWTIssuer,
			JWTAudience:     cfg.Auth.JWTAudience,
			JWTLeeway:       time.Duration(cfg.Auth.JWTLeewaySec) * time.Second,
		},
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	// Background maintenance
	scheduler := jobs.New(logger)
	if memLimiter != nil {
		if err := scheduler.AddLimiterSweep(cfg.Jobs.LimiterSweep, memLimiter, metrics.RateLimitTrackedClients); err != nil {
			logger.Fatal("Invalid job schedule", zap.Error(err))
		}
	}
	if err := scheduler.AddSecretRefresh(cfg.Jobs.SecretRefresh, secretCache); err != nil {
		logger.Fatal("Invalid job schedule", zap.Error(err))
	}
	scheduler.Start()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	logger.Info("Server stopped gracefully")
}

// buildCompiler assembles the query compiler from the configured filter policy.
func buildCompiler(sc config.SearchConfig) (*request.Compiler, error) {
	p, err := policy.New(policy.Mode(sc.FilterPolicy.Mode), sc.FilterPolicy.Version, sc.FilterPolicy.Attributes)
	if err != nil {
		return nil, err
	}
	return request.NewCompiler(p).WithPagination(sc.DefaultHitsPerPage, sc.MaxHitsPerPage), nil
}

// buildStore selects the review image store. Returns nil when uploads are disabled.
func buildStore(ctx context.Context, sc config.StorageConfig, keys *secrets.Cache, logger *zap.Logger) (mediauc.Store, error) {
	switch sc.Driver {
	case "bunny":
		return bunny.New(bunny.Config{
			Zone:            sc.Bunny.Zone,
			Region:          sc.Bunny.Region,
			AccessKeySecret: sc.Bunny.AccessKeySecret,
			CDNHost:         sc.Bunny.CDNHost,
			BaseURL:         sc.Bunny.BaseURL,
			Timeout:         time.Duration(sc.Bunny.TimeoutSec) * time.Second,
		}, keys, logger)
	case "s3":
		return s3blob.New(ctx, s3blob.Config{
			Bucket:          sc.S3.Bucket,
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
			BaseURL:         sc.S3.BaseURL,
		})
	default:
		return nil, nil
	}
}

// buildClassifier selects the image classifier. Returns nil when moderation is disabled.
func buildClassifier(mc config.ModerationConfig, logger *zap.Logger) (moderationuc.Classifier, error) {
	switch mc.Driver {
	case "http":
		return nsfw.New(nsfw.Config{
			URL:     mc.HTTP.URL,
			Timeout: time.Duration(mc.HTTP.TimeoutSec) * time.Second,
		})
	case "openai":
		return openaiMod.NewClassifier(&openaiMod.Config{
			APIKey:  mc.OpenAI.APIKey,
			BaseURL: mc.OpenAI.BaseURL,
			Model:   mc.OpenAI.Model,
			Logger:  logger,
		}), nil
	default:
		return nil, nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			req := r.WithContext(logpkg.ContextWithLogger(r.Context(), reqLogger))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, req)

			// RealIP rewrites req.RemoteAddr in place when proxy headers are trusted.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", req.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
