// Package normalize implements the text normalizer (C1): a small, idempotent
// pipeline of rules applied to raw inbound chat text before parsing or
// routing.
package normalize

import (
	"regexp"
	"strings"
)

var (
	addresseePrefixRE = regexp.MustCompile(`(?i)^\s*партнер-м\s*,\s*`)
	greetingRE        = regexp.MustCompile(`(?i)^\s*(здравствуйте|добрый день|добрый вечер|привет)[!,.\s]*`)
	sizeXRE           = regexp.MustCompile(`(\d+)\s*[xх×*]\s*(\d+)`)
	sizeNaRE          = regexp.MustCompile(`(\d+)\s+на\s+(\d+)`)
	whitespaceRE      = regexp.MustCompile(`\s+`)
)

// Text applies the C1 rule list, in order, to raw input. Every rule is
// idempotent and the function never fails — it always returns a string,
// possibly empty.
func Text(raw string) string {
	s := strings.TrimSpace(raw)
	s = addresseePrefixRE.ReplaceAllString(s, "")
	s = greetingRE.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	s = sizeXRE.ReplaceAllString(s, "${1}x${2}")
	s = sizeNaRE.ReplaceAllString(s, "${1}x${2}")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
