package clarify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHeadTokenSkipsStopAndShortTokens(t *testing.T) {
	assert.Equal(t, "болгарка", ExtractHeadToken("по для болгарка 125"))
	assert.Equal(t, "", ExtractHeadToken("по и для"))
}

func TestBuildFromSuggestionsNoCandidatesYieldsCannedQuestion(t *testing.T) {
	got := BuildFromSuggestions("no_candidates", nil, 0, 10)
	assert.Equal(t, "Не нашёл точный вариант. Уточни товар/артикул:", got.Question)
	assert.Empty(t, got.Options)
	assert.Nil(t, got.NextOffset)
	assert.Equal(t, 0, got.Total)
}

func TestBuildFromSuggestionsPaginatesAndLabelsOptions(t *testing.T) {
	suggestions := make([]Suggestion, 15)
	for i := range suggestions {
		suggestions[i] = Suggestion{ProductID: int64(i + 1), Title: "товар"}
	}
	got := BuildFromSuggestions("conflict", suggestions, 0, 10)
	require.Len(t, got.Options, 10)
	assert.Equal(t, "opt_1", got.Options[0].ID)
	assert.Equal(t, []string{"товар"}, got.Options[0].AppendTokens)
	require.NotNil(t, got.NextOffset)
	assert.Equal(t, 10, *got.NextOffset)
	assert.Nil(t, got.PrevOffset)
	assert.Equal(t, "Нашёл много вариантов. Уточни товар:", got.Question)
}

func TestBuildFromSuggestionsSecondPageHasPrevOffset(t *testing.T) {
	suggestions := make([]Suggestion, 15)
	for i := range suggestions {
		suggestions[i] = Suggestion{ProductID: int64(i + 1), Title: "товар"}
	}
	got := BuildFromSuggestions("conflict", suggestions, 10, 10)
	require.Len(t, got.Options, 5)
	assert.Equal(t, "opt_11", got.Options[0].ID)
	assert.Nil(t, got.NextOffset)
	require.NotNil(t, got.PrevOffset)
	assert.Equal(t, 0, *got.PrevOffset)
}

func TestBuildFromSuggestionsClampsOutOfRangeOffset(t *testing.T) {
	suggestions := []Suggestion{{ProductID: 1, Title: "товар один"}, {ProductID: 2, Title: "товар два"}}
	got := BuildFromSuggestions("conflict", suggestions, 999, 10)
	assert.Equal(t, 1, got.Offset)
	assert.Len(t, got.Options, 1)
}

func TestShortLabelTruncatesLongTitles(t *testing.T) {
	long := "болт оцинкованный din 933 с шестигранной головкой полной резьбой 8x30 упаковка 100 штук"
	got := shortLabel(long, 56)
	assert.LessOrEqual(t, len([]rune(got)), 56)
	assert.Contains(t, got, "…")
}

func TestFacetSuggestionsPicksHighestEntropyBucket(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, TitleRu: "Молния спираль 50см серая"},
		{ID: 2, TitleRu: "Молния спираль 50см бежевая"},
		{ID: 3, TitleRu: "Молния спираль 50см белая"},
		{ID: 4, TitleRu: "Молния спираль 50см синяя"},
	}
	bucket, values := FacetSuggestions(candidates)
	assert.Equal(t, "цвет", bucket)
	assert.ElementsMatch(t, []string{"серая", "бежевая", "белая", "синяя"}, values)
}

func TestFacetSuggestionsReturnsEmptyWhenNoBucketHasTwoDistinctValues(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, TitleRu: "Болт din 933 8x30"},
		{ID: 2, TitleRu: "Болт din 933 8x30"},
	}
	bucket, values := FacetSuggestions(candidates)
	assert.Equal(t, "", bucket)
	assert.Nil(t, values)
}

func TestFacetSuggestionsCapsAtMaxValues(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 40; i++ {
		size := "10x" + itoa(i+1)
		candidates = append(candidates, Candidate{ID: int64(i), TitleRu: "Болт " + size})
	}
	_, values := FacetSuggestions(candidates)
	assert.LessOrEqual(t, len(values), maxFacetValues)
}

func TestShannonEntropyIsZeroForSingleValue(t *testing.T) {
	assert.Equal(t, 0.0, shannonEntropy([]string{"a", "a", "a"}))
}

func TestShannonEntropyIsHigherForMoreUniformDistribution(t *testing.T) {
	uniform := shannonEntropy([]string{"a", "b", "c", "d"})
	skewed := shannonEntropy([]string{"a", "a", "a", "b"})
	assert.Greater(t, uniform, skewed)
}
