package cafecache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kopimap/kopimap-api/internal/db"
	"github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/cafe/patch"
)

type mockRepo struct {
	getFn    func(ctx context.Context, id string) (cafe.Cafe, error)
	updateFn func(ctx context.Context, p patch.Patch) (int64, error)
	getCalls int
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (cafe.Cafe, error) {
	m.getCalls++
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return cafe.Reconstruct(map[string]any{"id": id}), nil
}

func (m *mockRepo) Update(ctx context.Context, p patch.Patch) (int64, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, p)
	}
	return 1, nil
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn func(ctx context.Context, key string) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockKVStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func newTestRepo(t *testing.T, inner *mockRepo) (*Repo, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	return New(inner, ms, time.Minute, nil, zap.NewNop()), ms
}
