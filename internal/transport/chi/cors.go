package chi

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSOptions is the browser access policy.
type CORSOptions struct {
	AllowedOrigins []string
	MaxAgeSec      int
}

// DefaultAllowedOrigins are the web clients served when none are configured.
func DefaultAllowedOrigins() []string {
	return []string{"http://localhost:5173", "https://kopimap.com"}
}

// CORS reflects allow-listed origins and answers preflight requests.
func CORS(o CORSOptions) func(http.Handler) http.Handler {
	origins := o.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins()
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           o.MaxAgeSec,
	})
}
