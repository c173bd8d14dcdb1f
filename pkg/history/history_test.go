package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeQuerySplitsAnchorsOptionalAndNumbers(t *testing.T) {
	qt := tokenizeQuery("болт din 933 8x30 без пружин", "болт din 933 8x30 без пружин")
	assert.Contains(t, qt.Anchors, "болт")
	assert.False(t, qt.WithSprings)
}

func TestTokenizeQueryDetectsSpringsWithoutNegation(t *testing.T) {
	qt := tokenizeQuery("диван с пружинами мягкий", "диван с пружинами мягкий")
	assert.True(t, qt.WithSprings)
}

func TestTokenizeQueryNegatedSpringsIsNotWithSprings(t *testing.T) {
	qt := tokenizeQuery("диван без пружин мягкий", "диван без пружин мягкий")
	assert.False(t, qt.WithSprings)
}

func TestHasPrefixMatchAcceptsWordStartingWithToken(t *testing.T) {
	words := wordSet([]string{"болты", "стальные"})
	assert.True(t, hasPrefixMatch("болт", words))
	assert.False(t, hasPrefixMatch("гайка", words))
}

func TestSortScoredDescOrdersHighestFirst(t *testing.T) {
	items := []Scored{{ID: 1, Score: 0.5}, {ID: 2, Score: 2.0}, {ID: 3, Score: 1.0}}
	sortScoredDesc(items)
	assert.Equal(t, []int64{2, 3, 1}, []int64{items[0].ID, items[1].ID, items[2].ID})
}

func TestIntersectionCountCountsMatchingOptionalTokens(t *testing.T) {
	words := wordSet([]string{"болт", "черный", "8x30"})
	assert.Equal(t, 2, intersectionCount([]string{"черный", "8x30", "розовый"}, words))
}
