package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextRules(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"addressee prefix", "Партнер-М, добавь болт", "добавь болт"},
		{"greeting prefix", "Здравствуйте, нужен болт", "нужен болт"},
		{"yo replacement", "Ёлка ёж", "елка еж"},
		{"size with x", "болт 8х30", "болт 8x30"},
		{"size with na", "болт 8 на 30", "болт 8x30"},
		{"whitespace collapse", "болт   8x30   дин  933", "болт 8x30 дин 933"},
		{"trim", "  болт  ", "болт"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Text(tc.in))
		})
	}
}

func TestTextIdempotence(t *testing.T) {
	inputs := []string{
		"Партнер-М, Здравствуйте! Ёж 8Х30 на 5 дин 933",
		"добрый вечер нужно 3 мотка ниток белых",
		"  add white thread  ",
		"",
	}
	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		assert.Equal(t, once, twice, "normalize(normalize(%q)) must equal normalize(%q)", in, in)
	}
}
