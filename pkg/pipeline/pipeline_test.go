package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/pkg/history"
	"github.com/wholesale-bot/resolver/pkg/models"
)

// -- fakes --------------------------------------------------------------

type fakeAliases struct {
	ids []int64
	err error
}

func (f *fakeAliases) FindCandidates(_ context.Context, _ int64, _ string, _ int) ([]int64, error) {
	return f.ids, f.err
}

type fakeSynonyms struct{ m map[string]string }

func (f *fakeSynonyms) GetMap(_ context.Context, _ *int64) (map[string]string, error) {
	if f.m == nil {
		return map[string]string{}, nil
	}
	return f.m, nil
}

type fakeHistory struct {
	byQuery map[string][]history.Scored
	ids     []int64
}

func (f *fakeHistory) Score(_ context.Context, _ int64, queryCore string, _ int) ([]history.Scored, error) {
	return f.byQuery[queryCore], nil
}

func (f *fakeHistory) CandidateIDs(_ context.Context, _ int64, _ int) ([]int64, error) {
	return f.ids, nil
}

type fakeCatalog struct {
	byQuery map[string][]catalog.Result
	// suggestByQuery backs the clarification gate's head-token lookup,
	// which searches with headSuggestionLimit rather than opts.Limit —
	// keeping it separate lets a test starve every retrieval stage while
	// still feeding the no-candidates clarification path.
	suggestByQuery map[string][]catalog.Result
}

func (f *fakeCatalog) Search(_ context.Context, query string, limit int, _, productIDs []int64) ([]catalog.Result, error) {
	if limit == headSuggestionLimit {
		return f.suggestByQuery[query], nil
	}
	if len(productIDs) > 0 {
		// alias-scoped search: return whatever is configured for the query,
		// restricted to the supplied ids.
		out := f.byQuery[query]
		var filtered []catalog.Result
		for _, r := range out {
			for _, id := range productIDs {
				if r.ID == id {
					filtered = append(filtered, r)
				}
			}
		}
		return filtered, nil
	}
	results := f.byQuery[query]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type fakeOrgs struct{ orgID int64 }

func (f *fakeOrgs) ResolveOrgForUser(_ context.Context, _ int64) (int64, error) {
	return f.orgID, nil
}

type fakeProducts struct{}

func (f *fakeProducts) ListByIDs(_ context.Context, ids []int64) ([]*models.Product, error) {
	return nil, nil
}

func orch(aliases *fakeAliases, hist *fakeHistory, cat *fakeCatalog) *Orchestrator {
	return &Orchestrator{
		Orgs:     &fakeOrgs{orgID: 7},
		Products: &fakeProducts{},
		Aliases:  aliases,
		Synonyms: &fakeSynonyms{},
		History:  hist,
		Catalog:  cat,
		LLM:      nil,
	}
}

// -- attempt queries ------------------------------------------------------

func TestBuildAttemptQueriesReducesDecoratorsAndColor(t *testing.T) {
	queries := buildAttemptQueries("нужно 10шт серая молния 50см универсальная")
	require.NotEmpty(t, queries)
	assert.Contains(t, queries[0], "10")
	last := queries[len(queries)-1]
	assert.LessOrEqual(t, len(tokenRE.FindAllString(last, -1)), 6)
}

func TestBuildAttemptQueriesDedupesIdenticalStages(t *testing.T) {
	queries := buildAttemptQueries("болт")
	for i := 0; i < len(queries); i++ {
		for j := i + 1; j < len(queries); j++ {
			assert.NotEqual(t, queries[i], queries[j])
		}
	}
}

func TestNormalizeRuAdjStemFoldsGenderedColorVariants(t *testing.T) {
	assert.Equal(t, normalizeRuAdjStem("серая"), normalizeRuAdjStem("серый"))
	assert.Equal(t, "дин933", normalizeRuAdjStem("дин933"))
}

// -- terminal outcomes ------------------------------------------------------

func TestRunAliasOKWhenAliasScopedSearchHits(t *testing.T) {
	o := orch(
		&fakeAliases{ids: []int64{1}},
		&fakeHistory{},
		&fakeCatalog{byQuery: map[string][]catalog.Result{
			"болт м8": {{ID: 1, TitleRu: "Болт М8"}},
		}},
	)
	result := o.Run(context.Background(), "болт м8", Options{UserID: intPtr64(1)})
	assert.Equal(t, OutcomeAliasOK, result.Decision.Outcome)
	require.Len(t, result.Results, 1)
	assert.Equal(t, int64(1), result.Results[0].ID)
}

func TestRunHistoryOKWhenAliasMissesButHistoryScores(t *testing.T) {
	o := orch(
		&fakeAliases{},
		&fakeHistory{byQuery: map[string][]history.Scored{
			"болт м8": {{ID: 2, SKU: "B2", TitleRu: "Болт М8 оцинкованный", Score: 1.0}},
		}},
		&fakeCatalog{byQuery: map[string][]catalog.Result{}},
	)
	result := o.Run(context.Background(), "болт м8", Options{UserID: intPtr64(1)})
	assert.Equal(t, OutcomeHistoryOK, result.Decision.Outcome)
	assert.True(t, result.Decision.HistoryUsed)
}

func TestRunLocalOKWhenOnlyCatalogHits(t *testing.T) {
	o := orch(
		&fakeAliases{},
		&fakeHistory{},
		&fakeCatalog{byQuery: map[string][]catalog.Result{
			"болт м8": {{ID: 3, TitleRu: "Болт М8"}},
		}},
	)
	result := o.Run(context.Background(), "болт м8", Options{UserID: intPtr64(1)})
	assert.Equal(t, OutcomeLocalOK, result.Decision.Outcome)
}

func TestRunNeedsClarificationWhenGlobalSuggestionsExist(t *testing.T) {
	o := orch(
		&fakeAliases{},
		&fakeHistory{},
		&fakeCatalog{
			byQuery: map[string][]catalog.Result{},
			suggestByQuery: map[string][]catalog.Result{
				"болгарка": {{ID: 4, TitleRu: "Болгарка 125мм"}, {ID: 5, TitleRu: "Болгарка 230мм"}},
			},
		},
	)
	result := o.Run(context.Background(), "болгарка", Options{})
	assert.Equal(t, OutcomeNeedsClarification, result.Decision.Outcome)
	require.NotNil(t, result.Decision.Clarification)
	assert.NotEmpty(t, result.Decision.Clarification.Options)
}

func TestRunNoMatchWhenNothingResolves(t *testing.T) {
	o := orch(&fakeAliases{}, &fakeHistory{}, &fakeCatalog{byQuery: map[string][]catalog.Result{}})
	result := o.Run(context.Background(), "несуществующий товар xyz", Options{})
	assert.Equal(t, OutcomeNoMatch, result.Decision.Outcome)
	assert.Empty(t, result.Results)
}

func TestRunSearchPipelineWrapperDelegatesToOrchestrator(t *testing.T) {
	o := orch(
		&fakeAliases{},
		&fakeHistory{},
		&fakeCatalog{byQuery: map[string][]catalog.Result{
			"болт м8": {{ID: 3, TitleRu: "Болт М8"}},
		}},
	)
	result := RunSearchPipeline(context.Background(), o, "болт м8", Options{UserID: intPtr64(1)})
	assert.Equal(t, OutcomeLocalOK, result.Decision.Outcome)
}

// -- determinism --------------------------------------------------------

func TestRunIsDeterministicWithLLMDisabled(t *testing.T) {
	cat := &fakeCatalog{byQuery: map[string][]catalog.Result{
		"болт м8": {{ID: 3, TitleRu: "Болт М8"}},
	}}
	o := orch(&fakeAliases{}, &fakeHistory{}, cat)
	first := o.Run(context.Background(), "болт м8", Options{UserID: intPtr64(1)})
	second := o.Run(context.Background(), "болт м8", Options{UserID: intPtr64(1)})
	assert.Equal(t, first.Decision.Outcome, second.Decision.Outcome)
	assert.Equal(t, first.Results, second.Results)
}

// -- multi-item backward compatibility -----------------------------------

func TestRunMultiItemPreservesTopLevelResultsFromFirstItem(t *testing.T) {
	cat := &fakeCatalog{byQuery: map[string][]catalog.Result{
		"болт м8":  {{ID: 1, TitleRu: "Болт М8"}},
		"гайка м8": {{ID: 2, TitleRu: "Гайка М8"}},
	}}
	o := orch(&fakeAliases{}, &fakeHistory{}, cat)
	result := o.Run(context.Background(), "болт м8 и гайка м8", Options{UserID: intPtr64(1)})
	require.True(t, result.Decision.MultiItem)
	require.Len(t, result.Items, 2)
	assert.Equal(t, result.Items[0].Results, result.Results)
}

func intPtr64(v int64) *int64 { return &v }
