// Package secrets resolves named credentials (update key, upload JWT secret,
// CDN keys) from a provider and caches them with an explicit TTL.
package secrets

import (
	"context"
	"fmt"

	"github.com/kopimap/kopimap-api/internal/domain"
)

// Provider looks up a secret value by name.
type Provider interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Static serves secrets from configuration.
type Static struct {
	values map[string]string
}

// NewStatic creates a provider over a fixed set of values.
func NewStatic(values map[string]string) *Static {
	c := make(map[string]string, len(values))
	for k, v := range values {
		c[k] = v
	}
	return &Static{values: c}
}

// Lookup returns the configured value. Empty values count as missing.
func (s *Static) Lookup(_ context.Context, name string) (string, error) {
	v, ok := s.values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("secret %q: %w", name, domain.ErrSecretNotFound)
	}
	return v, nil
}
