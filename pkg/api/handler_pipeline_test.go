package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/pkg/dialog"
	"github.com/wholesale-bot/resolver/pkg/pipeline"
)

// fakeRewriter is an always-unavailable intent.Rewriter, keeping routing
// deterministic in these handler tests.
type fakeRewriter struct{}

func (fakeRewriter) Available() bool { return false }
func (fakeRewriter) Chat(_ context.Context, _, _ string) (string, error) { return "", nil }

func newTestHandler() *dialog.Handler {
	cat := &fakeCatalog{byQuery: map[string][]catalog.Result{
		"болт м8": {{ID: 1, TitleRu: "Болт М8"}},
	}}
	return &dialog.Handler{
		Pipeline: &pipeline.Orchestrator{
			Orgs: &fakeOrgs{}, Products: &fakeProducts{},
			Aliases: &fakeAliases{}, Synonyms: &fakeSynonyms{}, History: &fakeHistory{}, Catalog: cat,
		},
		LLM:   fakeRewriter{},
		Store: dialog.NewStore(dialog.DefaultTTL, nil),
	}
}

func TestPipelineRunHandlerRunsOneTurn(t *testing.T) {
	s := NewServer(nil, newTestHandler())
	body, err := json.Marshal(PipelineRunRequest{ChatID: "chat-1", Text: "добавь болт м8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PipelineRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, pipeline.OutcomeLocalOK, resp.Items[0].Decision.Outcome)
	assert.Nil(t, resp.Items[0].Trace)
}

func TestPipelineRunHandlerIncludesTraceWhenRequested(t *testing.T) {
	s := NewServer(nil, newTestHandler())
	body, err := json.Marshal(PipelineRunRequest{ChatID: "chat-2", Text: "добавь болт м8", Trace: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PipelineRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.NotNil(t, resp.Items[0].Trace)
}
