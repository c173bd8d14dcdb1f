package llmaug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/llmaug/provider"
)

type fakeProvider struct {
	available bool
	response  string
	err       error
}

func (f fakeProvider) Available() bool { return f.available }
func (f fakeProvider) Chat(context.Context, []provider.Message, float64) (string, error) {
	return f.response, f.err
}

func TestRewriteReturnsInputWhenProviderUnavailable(t *testing.T) {
	svc := New(fakeProvider{available: false}, nil, nil)
	got := svc.Rewrite(context.Background(), "мне нужно 10 шт болтов 8x30")
	assert.Equal(t, "мне нужно 10 шт болтов 8x30", got)
}

func TestRewriteTrimsToSixTokens(t *testing.T) {
	svc := New(fakeProvider{available: true, response: "болт din 933 8x30 оцинкованный стальной лишнее"}, nil, nil)
	got := svc.Rewrite(context.Background(), "ignored")
	assert.Equal(t, "болт din 933 8x30 оцинкованный стальной", got)
}

func TestNormalizeParsesAlternativesAndDedupes(t *testing.T) {
	svc := New(fakeProvider{available: true, response: `{"alternatives":["болт 8x30","Болт 8X30","гайка м8"]}`}, nil, nil)
	got := svc.Normalize(context.Background(), "ignored")
	require.Len(t, got, 2)
	assert.Equal(t, "болт 8x30", got[0])
	assert.Equal(t, "гайка м8", got[1])
}

func TestNormalizeReturnsEmptyOnUnparseableJSON(t *testing.T) {
	svc := New(fakeProvider{available: true, response: "not json"}, nil, nil)
	got := svc.Normalize(context.Background(), "ignored")
	assert.Empty(t, got)
}

func TestRerankReturnsEmptyForFewerThanTwoCandidates(t *testing.T) {
	svc := New(fakeProvider{available: true}, nil, nil)
	got := svc.Rerank(context.Background(), "q", []RerankCandidate{{ID: 1}}, nil)
	assert.Empty(t, got)
}

func TestRerankParsesBestList(t *testing.T) {
	svc := New(fakeProvider{available: true, response: `prefix {"best":[{"product_id":1,"score":0.9,"reason":"match"}]} suffix`}, nil, nil)
	got := svc.Rerank(context.Background(), "q", []RerankCandidate{{ID: 1}, {ID: 2}}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ProductID)
	assert.Equal(t, 0.9, got[0].Score)
}

func TestExtractJSONObjectFindsBalancedBraces(t *testing.T) {
	got := extractJSONObject(`noise {"a": {"b": 1}} trailing`)
	assert.Equal(t, `{"a": {"b": 1}}`, got)
}

func TestFilterManifestDropsBlacklistedAndNumericOnlyExamples(t *testing.T) {
	manifest := []CategoryManifestEntry{
		{CategoryID: 1, Title: "Удаленные товары", CountDirect: 5, Examples: []string{"болт"}},
		{CategoryID: 2, Title: "Крепёж", CountDirect: 0, Examples: []string{"болт"}},
		{CategoryID: 3, Title: "Крепёж", CountDirect: 5, Examples: []string{"123", "45"}},
		{CategoryID: 4, Title: "Крепёж", CountDirect: 5, Examples: []string{"болт м8"}},
	}
	filtered := filterManifest(manifest)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(4), filtered[0].CategoryID)
}

func TestNormalizeForNarrowStripsQtyAndDashQty(t *testing.T) {
	got := normalizeForNarrow("Болт 10шт - 2рол оцинкованный")
	assert.Equal(t, "болт оцинкованный", got)
}
