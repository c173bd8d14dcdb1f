package synonym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQueryRewritesKnownTokens(t *testing.T) {
	rewritten, applied := NormalizeQuery("нужен спандбонд белый", map[string]string{"спандбонд": "спанбонд"})
	assert.Equal(t, "нужен спанбонд белый", rewritten)
	assert.Equal(t, map[string]string{"спандбонд": "спанбонд"}, applied)
}

func TestNormalizeQueryPpuToFoamOnlyWhenShortAndUnanchored(t *testing.T) {
	rewritten, applied := NormalizeQuery("ппу лист", map[string]string{})
	assert.Equal(t, "поролон лист", rewritten)
	assert.Equal(t, "поролон", applied["ппу"])
}

func TestNormalizeQueryPpuNotRewrittenWhenArticleAnchored(t *testing.T) {
	rewritten, applied := NormalizeQuery("ппу ST4521 лист плотный", map[string]string{})
	assert.Contains(t, rewritten, "ппу")
	assert.NotContains(t, applied, "ппу")
}

func TestNormalizeQueryPpuNotRewrittenWhenLongQuery(t *testing.T) {
	rewritten, applied := NormalizeQuery("ппу лист белый плотный пятисантиметровый", map[string]string{})
	assert.Contains(t, rewritten, "ппу")
	assert.NotContains(t, applied, "ппу")
}

func TestNormalizeQueryEmptyInput(t *testing.T) {
	rewritten, applied := NormalizeQuery("   ", map[string]string{})
	assert.Equal(t, "", rewritten)
	assert.Empty(t, applied)
}

func TestCacheKeyGlobalVsOrg(t *testing.T) {
	assert.Equal(t, "search_alias_map:0", cacheKey(nil))
	orgID := int64(42)
	assert.Equal(t, "search_alias_map:42", cacheKey(&orgID))
}
