package media

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/domain"
	"github.com/kopimap/kopimap-api/internal/metrics"
	"github.com/kopimap/kopimap-api/internal/validation"
)

// Defaults.
const (
	DefaultKeyPrefix = "review-images"
	DefaultMaxBytes  = 10 << 20
	// UnknownPlace is the folder used when the client sends no place id.
	UnknownPlace = "unknown"
)

// Config holds upload limits.
type Config struct {
	KeyPrefix string
	MaxBytes  int64
}

// Upload is one image to store.
type Upload struct {
	PlaceID     string `json:"placeId" validate:"required,max=511,cafeid"`
	Filename    string `json:"filename" validate:"required,max=255,filename"`
	ContentType string `json:"contentType" validate:"required,startswith=image/"`
	Data        []byte `json:"-"`
}

// Service stores review images and returns their CDN address.
type Service struct {
	store    Store
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a media service.
func New(store Store, cfg Config, validate *validator.Validate, logger *zap.Logger) *Service {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, validate: validate, logger: logger}
}

// Upload stores in.Data under <prefix>/<placeId>/<filename> and returns the
// public URL. An existing object with the same key is replaced.
func (s *Service) Upload(ctx context.Context, in Upload) (string, error) {
	in = s.normalize(in)

	if len(in.Data) == 0 {
		return "", fmt.Errorf("%w: file is empty", domain.ErrInvalidInput)
	}
	if int64(len(in.Data)) > s.cfg.MaxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.cfg.MaxBytes)
	}
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidInput, validation.Message(err))
	}

	key := s.Key(in.PlaceID, in.Filename)
	if err := s.store.Put(ctx, key, in.ContentType, in.Data); err != nil {
		metrics.UploadsTotal.WithLabelValues(s.store.Name(), "error").Inc()
		return "", fmt.Errorf("upload image: %w", err)
	}
	metrics.UploadsTotal.WithLabelValues(s.store.Name(), "ok").Inc()

	url := s.store.PublicURL(key)
	s.logger.Info("Image uploaded",
		zap.String("driver", s.store.Name()),
		zap.String("key", key),
		zap.Int("bytes", len(in.Data)),
	)
	return url, nil
}

// Key returns the object key for a place's file.
func (s *Service) Key(placeID, filename string) string {
	return s.cfg.KeyPrefix + "/" + placeID + "/" + filename
}

func (s *Service) normalize(in Upload) Upload {
	in.PlaceID = strings.TrimSpace(in.PlaceID)
	if in.PlaceID == "" {
		in.PlaceID = UnknownPlace
	}

	// Browsers may send a full client path; keep the last segment only.
	name := strings.ReplaceAll(strings.TrimSpace(in.Filename), `\`, "/")
	if name != "" {
		name = path.Base(name)
	}
	in.Filename = name

	ct := strings.TrimSpace(in.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(in.Data)
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	in.ContentType = ct
	return in
}
