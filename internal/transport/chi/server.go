package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	"github.com/kopimap/kopimap-api/internal/logger"
	cafeuc "github.com/kopimap/kopimap-api/internal/usecase/cafe"
	healthuc "github.com/kopimap/kopimap-api/internal/usecase/health"
	mediauc "github.com/kopimap/kopimap-api/internal/usecase/media"
	moderationuc "github.com/kopimap/kopimap-api/internal/usecase/moderation"
	searchuc "github.com/kopimap/kopimap-api/internal/usecase/search"
	"github.com/kopimap/kopimap-api/internal/version"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeNotFound      = "not_found"
	codeRateLimited   = "rate_limited"
	codeBackendError  = "backend_error"
	codeStorageError  = "storage_error"
	codeModeration    = "moderation_error"
	codeInternalError = "internal_error"
)

// Client-facing messages.
const (
	msgRateLimited   = "Too many requests, please try again later."
	msgSearchFailed  = "Error performing search"
	msgFetchFailed   = "Error fetching cafe details"
	msgUpdateFailed  = "Error updating cafe"
	msgUpdated       = "Cafe updated successfully"
	msgUploadFailed  = "Failed to upload image"
	msgModerateFail  = "Error moderating image"
	msgInvalidUpdate = "Invalid request body. Must include cafe ID."
	msgNoFile        = "No file field in the upload"
	msgInvalidImage  = "Invalid request body. Must include imageBase64."
)

// Defaults for request body limits.
const (
	DefaultMaxBodyBytes   = 1 << 20
	DefaultMaxUploadBytes = 10 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Services are the usecases behind the HTTP API. Media and Moderation are
// optional: their routes are not registered when nil.
type Services struct {
	Search     *searchuc.Service
	Cafes      *cafeuc.Service
	Media      *mediauc.Service
	Moderation *moderationuc.Service
	Health     *healthuc.Service
}

// Options configures request handling.
type Options struct {
	MaxBodyBytes      int64
	MaxUploadBytes    int64
	TrustProxyHeaders bool
	CORS              CORSOptions
	Auth              AuthOptions
}

// Server serves the kopimap HTTP API.
type Server struct {
	svc           Services
	secrets       secretSource
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, secrets secretSource, opts Options, logger *zap.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	opts.Auth.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		secrets: secrets,
		opts:    opts,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		rateLimitedHandler,
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
	}
	return s
}

// Register mounts the API on r. It installs router-wide middleware, so it
// must run before any route is added to r.
func (s *Server) Register(r chi.Router) {
	r.Use(CORS(s.opts.CORS))
	r.Use(ClientIdentity(s.opts.TrustProxyHeaders))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.SearchCafes)
		r.Get("/cafe/{id}", s.GetCafe)
		r.With(UpdateKeyAuth(s.secrets, s.opts.Auth.UpdateKeySecret, s.logger)).
			Put("/update-cafe", s.UpdateCafe)
		if s.svc.Media != nil {
			r.With(JWTAuth(s.secrets, s.opts.Auth, s.logger)).
				Post("/upload-image", s.UploadImage)
		}
		if s.svc.Moderation != nil {
			r.Post("/moderate-image", s.ModerateImage)
		}
	})
}

type searchResponse struct {
	Hits             []result.Hit `json:"hits"`
	TotalHits        int64        `json:"totalHits"`
	Page             int          `json:"page"`
	HitsPerPage      int          `json:"hitsPerPage"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}

// SearchCafes handles GET /api/search.
func (s *Server) SearchCafes(w http.ResponseWriter, r *http.Request) {
	ps := params.Parse(r.URL.RawQuery)

	page, err := s.svc.Search.Search(r.Context(), ClientID(r.Context()), ps)
	if err != nil {
		s.handleDomainError(w, r, err, msgSearchFailed)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Hits:             page.Hits(),
		TotalHits:        page.TotalHits(),
		Page:             page.Page(),
		HitsPerPage:      page.HitsPerPage(),
		ProcessingTimeMs: page.ProcessingTimeMs(),
	})
}

// GetCafe handles GET /api/cafe/{id}.
func (s *Server) GetCafe(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Cafes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, c.Fields())
}

// UpdateCafe handles PUT /api/update-cafe.
func (s *Server) UpdateCafe(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, msgInvalidUpdate)
		return
	}

	if err := s.svc.Cafes.Update(r.Context(), payload); err != nil {
		s.handleDomainError(w, r, err, msgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgUpdated})
}

// UploadImage handles POST /api/upload-image (multipart: file, placeId).
func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope and the placeId field.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+DefaultMaxBodyBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, msgNoFile)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, msgNoFile)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, msgNoFile)
		return
	}

	url, err := s.svc.Media.Upload(r.Context(), mediauc.Upload{
		PlaceID:     r.FormValue("placeId"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.handleDomainError(w, r, err, msgUploadFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type moderateRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// ModerateImage handles POST /api/moderate-image.
func (s *Server) ModerateImage(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes*2)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.ImageBase64 == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, msgInvalidImage)
		return
	}

	verdict, err := s.svc.Moderation.Moderate(r.Context(), req.ImageBase64)
	if err != nil {
		s.handleDomainError(w, r, err, msgModerateFail)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Validation failures carry
// their own text; everything else is reduced to its sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrUnauthorized,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// rateLimitedHandler answers 429 with a Retry-After header.
func rateLimitedHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	var rle *domain.RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSec))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msgRateLimited)
	return true
}

// handleDomainError maps err to a response. Failures of external
// collaborators get the endpoint's fallback message.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := logger.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}

	code := codeInternalError
	switch {
	case errors.Is(err, domain.ErrBackend):
		code = codeBackendError
	case errors.Is(err, domain.ErrStorage):
		code = codeStorageError
	case errors.Is(err, domain.ErrModeration):
		code = codeModeration
	}
	log.Error("request failed", zap.String("code", code), zap.Error(err))
	writeError(w, http.StatusInternalServerError, code, fallback)
}
