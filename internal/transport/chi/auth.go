package chi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/logger"
)

// Default secret names.
const (
	DefaultUpdateKeySecret = "update_key"
	DefaultJWTSecret       = "jwt_secret"
)

const bearerPrefix = "Bearer "

// secretSource resolves named secrets (see secrets.Cache).
type secretSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// AuthOptions names the secrets guarding write endpoints and tunes JWT checks.
type AuthOptions struct {
	UpdateKeySecret string
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	JWTLeeway       time.Duration
}

func (o *AuthOptions) applyDefaults() {
	if o.UpdateKeySecret == "" {
		o.UpdateKeySecret = DefaultUpdateKeySecret
	}
	if o.JWTSecret == "" {
		o.JWTSecret = DefaultJWTSecret
	}
}

// UpdateKeyAuth admits requests whose bearer token equals the named secret.
// The endpoint is closed while the secret is not configured.
func UpdateKeyAuth(secrets secretSource, secretName string, base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized,
					"Unauthorized: Missing or invalid Authorization header")
				return
			}

			want, err := secrets.Get(r.Context(), secretName)
			if err != nil {
				secretError(w, r, base, secretName, err)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized: Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuth admits requests carrying an HS256 token signed with the named
// secret. The token subject is attached to the request logger.
func JWTAuth(secrets secretSource, opts AuthOptions, base *zap.Logger) func(http.Handler) http.Handler {
	opts.applyDefaults()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(opts.JWTLeeway),
	}
	if opts.JWTIssuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.JWTIssuer))
	}
	if opts.JWTAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.JWTAudience))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized: No token provided")
				return
			}

			key, err := secrets.Get(r.Context(), opts.JWTSecret)
			if err != nil {
				secretError(w, r, base, opts.JWTSecret, err)
				return
			}

			claims := jwt.MapClaims{}
			_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return []byte(key), nil
			}, parserOpts...)
			if err != nil {
				logger.FromContext(r.Context(), base).Info("JWT rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized: Invalid token")
				return
			}

			ctx := r.Context()
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				reqLogger := logger.FromContext(ctx, base).With(zap.String("user_id", sub))
				ctx = logger.ContextWithLogger(ctx, reqLogger)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(bearerPrefix):])
	return token, token != ""
}

func secretError(w http.ResponseWriter, r *http.Request, base *zap.Logger, name string, err error) {
	log := logger.FromContext(r.Context(), base)
	if errors.Is(err, domain.ErrSecretNotFound) {
		log.Warn("Auth secret not configured, rejecting", zap.String("secret", name))
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	log.Error("Auth secret lookup failed", zap.String("secret", name), zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
