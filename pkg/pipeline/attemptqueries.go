package pipeline

import (
	"strings"

	"github.com/wholesale-bot/resolver/pkg/catalog"
)

// attemptQueryStopWords carries qty/unit and generic noise tokens the
// reduced attempt-query strips.
var attemptQueryStopWords = map[string]bool{
	"шт": true, "штук": true, "кор": true, "короб": true, "коробка": true, "коробочки": true,
	"рул": true, "рулон": true, "рулонная": true, "уп": true, "упак": true, "упаковка": true,
	"мм": true, "см": true, "м": true, "м2": true, "кг": true, "гр": true, "г": true,
	"тип": true, "номер": true, "цвет": true, "no": true, "n": true,
}

var attemptQueryDecoratorTokens = map[string]bool{
	"светло": true, "темно": true, "универсальн": true, "по": true, "кор": true, "короб": true,
	"шт": true, "уп": true, "рул": true, "и": true, "на": true, "для": true, "нужно": true, "нужны": true,
	"дешев": true, "дешевая": true, "дешевый": true,
}

var attemptQueryColorStems = map[string]bool{
	"сер": true, "беж": true, "бел": true, "черн": true, "син": true, "зел": true, "красн": true,
}

var attemptQueryColorTokenMap = map[string]string{
	"серая": "сер", "серый": "сер", "серые": "сер",
	"белый": "бел", "белая": "бел",
	"черный": "черн", "черная": "черн",
	"бежевый": "бежев", "бежевая": "бежев",
}

var adjEndings = []string{"ая", "яя", "ый", "ий", "ое", "ее", "ые", "ие", "ого", "ему", "ым", "ой", "ую", "юю"}

// normalizeRuAdjStem folds a Russian adjective token to its stem so
// gendered color variants ("серая"/"серый") collapse under the same
// attempt-query token, mirroring
// _examples/original_source/app/services/search_pipeline.py's
// `_normalize_ru_adj_stem`.
func normalizeRuAdjStem(token string) string {
	if stem, ok := attemptQueryColorTokenMap[token]; ok {
		return stem
	}
	if isAllDigitsToken(token) || len([]rune(token)) < 5 {
		return token
	}
	for _, ending := range adjEndings {
		if strings.HasSuffix(token, ending) && len([]rune(token)) > len([]rune(ending))+2 {
			return strings.TrimSuffix(token, ending)
		}
	}
	return token
}

func isAllDigitsToken(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

var coreKeepTokens = map[string]bool{
	"тип": true, "din": true, "лл": true, "лл70": true, "ll": true, "ll70": true,
}

// buildAttemptQueries constructs the ordered, deduplicated attempt-query
// list [full, reduced, no_color, core] per spec.md §4.10 step 4.
func buildAttemptQueries(query string) []string {
	normalized := catalog.NormalizeQueryText(query)
	baseTokens := []string{}
	for _, tok := range tokenRE.FindAllString(normalized, -1) {
		baseTokens = append(baseTokens, normalizeRuAdjStem(tok))
	}
	if len(baseTokens) == 0 {
		if normalized == "" {
			return nil
		}
		return []string{normalized}
	}

	fullQuery := strings.Join(baseTokens, " ")

	var reducedTokens []string
	for _, t := range baseTokens {
		if !attemptQueryDecoratorTokens[t] && !attemptQueryStopWords[t] {
			reducedTokens = append(reducedTokens, t)
		}
	}
	reducedQuery := strings.Join(reducedTokens, " ")

	var noColorTokens []string
	for _, t := range reducedTokens {
		if !attemptQueryColorStems[t] {
			noColorTokens = append(noColorTokens, t)
		}
	}
	noColorQuery := strings.Join(noColorTokens, " ")

	var coreTokens []string
	for _, t := range noColorTokens {
		if isAllDigitsToken(t) || hasDigit(t) || coreKeepTokens[t] || len([]rune(t)) >= 4 {
			coreTokens = append(coreTokens, t)
		}
	}
	if len(coreTokens) > 6 {
		coreTokens = coreTokens[:6]
	}
	coreQuery := strings.Join(coreTokens, " ")

	return dedupeKeepOrder([]string{fullQuery, reducedQuery, noColorQuery, coreQuery})
}

func dedupeKeepOrder(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
