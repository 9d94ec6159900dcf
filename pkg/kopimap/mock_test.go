package kopimap

import (
	"context"

	domcafe "github.com/kopimap/kopimap-api/internal/domain/cafe"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/result"
	healthuc "github.com/kopimap/kopimap-api/internal/usecase/health"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, clientID string, ps params.Set) (result.Page, error)
}

func (m *mockSearchUC) Search(ctx context.Context, clientID string, ps params.Set) (result.Page, error) {
	return m.searchFn(ctx, clientID, ps)
}

// --- cafeUseCase mock ---

type mockCafeUC struct {
	getFn    func(ctx context.Context, id string) (domcafe.Cafe, error)
	updateFn func(ctx context.Context, payload map[string]any) error
}

func (m *mockCafeUC) Get(ctx context.Context, id string) (domcafe.Cafe, error) {
	return m.getFn(ctx, id)
}

func (m *mockCafeUC) Update(ctx context.Context, payload map[string]any) error {
	return m.updateFn(ctx, payload)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }

// --- pinger mock ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- helpers ---

func testClient(searchSvc searchUseCase, cafeSvc cafeUseCase) *Client {
	return &Client{
		backend:   &mockPinger{},
		searchSvc: searchSvc,
		cafeSvc:   cafeSvc,
	}
}
