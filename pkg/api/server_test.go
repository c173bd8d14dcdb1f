package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/pkg/history"
	"github.com/wholesale-bot/resolver/pkg/models"
)

type fakeOrgs struct{}

func (f *fakeOrgs) ResolveOrgForUser(_ context.Context, _ int64) (int64, error) { return 0, nil }

type fakeProducts struct{}

func (f *fakeProducts) ListByIDs(_ context.Context, _ []int64) ([]*models.Product, error) {
	return nil, nil
}

type fakeAliases struct{}

func (f *fakeAliases) FindCandidates(_ context.Context, _ int64, _ string, _ int) ([]int64, error) {
	return nil, nil
}

type fakeSynonyms struct{}

func (f *fakeSynonyms) GetMap(_ context.Context, _ *int64) (map[string]string, error) {
	return map[string]string{}, nil
}

type fakeHistory struct{}

func (f *fakeHistory) Score(_ context.Context, _ int64, _ string, _ int) ([]history.Scored, error) {
	return nil, nil
}

func (f *fakeHistory) CandidateIDs(_ context.Context, _ int64, _ int) ([]int64, error) {
	return nil, nil
}

type fakeCatalog struct {
	byQuery map[string][]catalog.Result
}

func (f *fakeCatalog) Search(_ context.Context, query string, limit int, _, _ []int64) ([]catalog.Result, error) {
	results := f.byQuery[query]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func TestHealthHandlerReturns503WithNoDatabase(t *testing.T) {
	s := NewServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPipelineRunHandlerReturns503WhenHandlerUnset(t *testing.T) {
	s := NewServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPipelineRunHandlerRejectsMalformedBody(t *testing.T) {
	s := NewServer(nil, newTestHandler())
	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
