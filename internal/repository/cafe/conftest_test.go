package cafe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/meilisearch/meilisearch-go"
)

// mockIndex implements the consumer interface for tests.
type mockIndex struct {
	searchFn func(ctx context.Context, query string, req *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error)
	getFn    func(ctx context.Context, id string, dst interface{}) error
	updateFn func(ctx context.Context, docs interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
}

func (m *mockIndex) SearchWithContext(
	ctx context.Context, query string, req *meilisearch.SearchRequest,
) (*meilisearch.SearchResponse, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, req)
	}
	return &meilisearch.SearchResponse{}, nil
}

func (m *mockIndex) GetDocumentWithContext(
	ctx context.Context, id string, _ *meilisearch.DocumentQuery, dst interface{},
) error {
	if m.getFn != nil {
		return m.getFn(ctx, id, dst)
	}
	return nil
}

func (m *mockIndex) UpdateDocumentsWithContext(
	ctx context.Context, docs interface{}, primaryKey ...string,
) (*meilisearch.TaskInfo, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, docs, primaryKey...)
	}
	return &meilisearch.TaskInfo{}, nil
}

type mockHealth struct {
	status string
	err    error
}

func (m *mockHealth) HealthWithContext(_ context.Context) (*meilisearch.Health, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &meilisearch.Health{Status: m.status}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockIndex) {
	t.Helper()
	mi := &mockIndex{}
	return New(mi, &mockHealth{status: "available"}, Config{}, Metrics{}), mi
}

// decodeInto fills dst the way the client does, via JSON.
func decodeInto(t *testing.T, doc map[string]any, dst interface{}) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
