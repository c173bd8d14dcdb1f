package orderparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/normalize"
)

func TestParseBoltWithSizeAndDin(t *testing.T) {
	items := Parse(normalize.Text("болт 8*30 din 933 10шт"))
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, 10, item.Qty)
	assert.Equal(t, "шт", item.Unit)
	assert.Contains(t, item.Numbers, 8)
	assert.Contains(t, item.Numbers, 30)
	assert.Contains(t, item.Numbers, 933)
	assert.Equal(t, "933", item.Attributes["din"])
	assert.Equal(t, "8x30", item.Attributes["size"])
}

func TestParseColorVariantsPropagateHead(t *testing.T) {
	items := Parse(normalize.Text("молния серая, беж по 5 шт"))
	require.Len(t, items, 2)

	first := items[0]
	assert.Contains(t, first.Query, "молния")
	assert.Equal(t, "сер", first.Attributes["color"])

	second := items[1]
	assert.Contains(t, second.Query, "молния", "head noun must propagate to the elided second item")
	assert.Equal(t, "беж", second.Attributes["color"])
	assert.Equal(t, 5, second.Qty)
	assert.Equal(t, "шт", second.Unit)
}

func TestParseThousandUnit(t *testing.T) {
	items := Parse(normalize.Text("саморез 3.5х16 2 т.шт"))
	require.Len(t, items, 1)
	assert.Equal(t, 2000, items[0].Qty)
	assert.Equal(t, "шт", items[0].Unit)
}

func TestParsePackOfAttachesPackQty(t *testing.T) {
	items := Parse(normalize.Text("перчатки нейлон по 10 шт"))
	require.Len(t, items, 1)
	assert.Equal(t, "10", items[0].Attributes["pack_qty"])
	assert.Equal(t, 10, items[0].Qty)
	assert.Equal(t, "шт", items[0].Unit)
}

func TestParseDefaultsQtyOneWhenNoUnit(t *testing.T) {
	items := Parse(normalize.Text("перфоратор бош"))
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Qty)
	assert.Equal(t, "", items[0].Unit)
}

func TestParsePatchItemHasNoQuery(t *testing.T) {
	items := Parse(normalize.Text("саморез 3.5х16; 1 кор"))
	require.Len(t, items, 2)
	assert.False(t, items[0].IsPatch)
	assert.True(t, items[1].IsPatch)
	assert.Equal(t, PatchQuery, items[1].Normalized)
	assert.Equal(t, 1, items[1].Qty)
	assert.Equal(t, "кор", items[1].Unit)
}

func TestParseSplitsOnConjunction(t *testing.T) {
	items := Parse(normalize.Text("болт 8x30 5шт и гайка м8 5шт"))
	require.Len(t, items, 2)
	assert.Contains(t, items[0].Query, "болт")
	assert.Contains(t, items[1].Query, "гайка")
}

func TestParseIdempotentQueryCoreStripsTrailingUnitTokens(t *testing.T) {
	item := parsePart("перчатки нейлон шт")
	assert.NotContains(t, item.QueryCore, "шт")
}
