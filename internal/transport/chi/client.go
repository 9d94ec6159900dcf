package chi

import (
	"context"
	"net"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kopimap/kopimap-api/internal/ratelimit"
)

type clientIDKey struct{}

// ClientIdentity resolves the caller's address once per request. With
// trustProxy the X-Forwarded-For / X-Real-IP headers win over the socket
// address; only enable it behind a proxy that overwrites them.
func ClientIdentity(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIDKey{}, remoteHost(r.RemoteAddr))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		if trustProxy {
			return chiMiddleware.RealIP(h)
		}
		return h
	}
}

// ClientID returns the identifier used for rate limiting.
func ClientID(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey{}).(string); ok && id != "" {
		return id
	}
	return ratelimit.AnonymousClient
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
