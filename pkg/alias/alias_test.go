package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsQtyUnitAndCollapsesSpace(t *testing.T) {
	assert.Equal(t, "болт", Normalize("  Болт   10шт "))
	assert.Equal(t, "саморез черный", Normalize("Саморез черный 2 кг"))
}

func TestNormalizeTruncatesTo255(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "а"
	}
	assert.Len(t, []rune(Normalize(long)), 255)
}

func TestNormalizeForAutolearnRejectsStopwords(t *testing.T) {
	assert.Equal(t, "", NormalizeForAutolearn("ок"))
	assert.Equal(t, "", NormalizeForAutolearn("Спасибо"))
}

func TestNormalizeForAutolearnRejectsTooShort(t *testing.T) {
	assert.Equal(t, "", NormalizeForAutolearn("да"))
	assert.Equal(t, "", NormalizeForAutolearn("ал"))
}

func TestNormalizeForAutolearnRejectsDigitsOnlyWithFewerThanTwoNumbers(t *testing.T) {
	assert.Equal(t, "", NormalizeForAutolearn("12345"))
}

func TestNormalizeForAutolearnAcceptsDigitsOnlyWithTwoNumbers(t *testing.T) {
	got := NormalizeForAutolearn("933 10")
	assert.Equal(t, "933 10", got)
}

func TestNormalizeForAutolearnFoldsHyphensAndPunctuation(t *testing.T) {
	got := NormalizeForAutolearn("din-933, оцинкованный!")
	assert.Equal(t, "din 933 оцинкованный", got)
}

func TestNormalizeForAutolearnAcceptsOrdinaryPhrase(t *testing.T) {
	assert.Equal(t, "молния серая", NormalizeForAutolearn("Молния серая"))
}
