package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQueryTextFoldsYoAndNonAlnum(t *testing.T) {
	assert.Equal(t, "ежик болт 8x30", normalizeQueryText("Ёжик-болт? 8x30!!"))
	assert.Equal(t, "механизм подъема", normalizeQueryText("Механизм подъема"))
}

func TestExtractTokensDropsStopWordsAndShortTokens(t *testing.T) {
	tokens := extractTokens("болт 10 шт см беж")
	assert.Contains(t, tokens, "болт")
	assert.Contains(t, tokens, "бежев")
	assert.NotContains(t, tokens, "шт")
	assert.NotContains(t, tokens, "см")
}

func TestEffectiveNumbersDropsSingleQtyNumber(t *testing.T) {
	numbers := effectiveNumbers("перчатки 10 шт", []int{10})
	assert.Empty(t, numbers)
}

func TestEffectiveNumbersKeepsNumbersWithoutQtyUnit(t *testing.T) {
	numbers := effectiveNumbers("din 933 болт", []int{933})
	assert.Equal(t, []int{933}, numbers)
}

func TestEffectiveNumbersKeepsMultipleNumbersEvenWithQtyUnit(t *testing.T) {
	numbers := effectiveNumbers("болт 8 30 10 шт", []int{8, 30, 10})
	assert.Equal(t, []int{8, 30, 10}, numbers)
}

func TestSizePairOrFirstTwoPrefersSizeRegex(t *testing.T) {
	got := sizePairOrFirstTwo("болт 8x30 дин 933", []int{8, 30, 933})
	assert.Equal(t, []int{8, 30}, got)
}

func TestScoreRewardsTitleSubstringNumbersAndDin933(t *testing.T) {
	r := row{SKU: "din933-8x30", TitleRu: "болт din 933 8x30"}
	s := score(r, "din 933 8x30", []int{933, 8, 30}, "din 933 8x30")
	assert.Greater(t, s, 5.0)
}

func TestTokenMatchesWordsPrefixMatch(t *testing.T) {
	assert.True(t, tokenMatchesWords("бежев", []string{"бежевый"}))
	assert.False(t, tokenMatchesWords("красн", []string{"бежевый"}))
}
