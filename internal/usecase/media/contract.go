package media

import "context"

// Store persists uploaded objects and knows their public address.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	PublicURL(key string) string
	Name() string
}
