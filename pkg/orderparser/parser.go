// Package orderparser implements the order parser (C2): splitting free text
// into item tuples with quantity, unit, numbers, a query core, and a small
// set of regex-extracted attributes, plus head-noun propagation across
// elided items.
//
// Grounded on _examples/original_source/app/services/order_parser.py
// (split regex, qty/unit extraction precedence, propagate_head two-pass
// fold), generalized to the richer unit table, attribute set, and patch-item
// handling spec.md §4.2 requires.
package orderparser

import (
	"regexp"
	"strconv"
	"strings"
)

// PatchQuery marks an item that carried only a quantity/unit with no
// product text — e.g. "1 кор" following a prior line — and needs a
// clarification asking which earlier item it patches.
const PatchQuery = "__PATCH__"

// Item is one parsed order line.
type Item struct {
	Raw        string
	Normalized string
	Qty        int
	Unit       string
	Numbers    []int
	QueryCore  string
	Query      string
	Attributes map[string]string
	IsPatch    bool
}

var (
	splitRE        = regexp.MustCompile(`[\n;,]+|\s+и\s+`)
	thousandRE     = regexp.MustCompile(`(?i)(\d+)\s*т\.?\s*шт(?:$|[^\p{L}\p{N}_])|(\d+)\s*тыс\.?\s*шт(?:$|[^\p{L}\p{N}_])`)
	qtyUnitRE      = regexp.MustCompile(`(?i)(\d+)\s*(шт|штук|кг|уп|упак|упаковку|кор|коробка|коробки|короб\p{L}*|рул|рол|рулон|м|пог\.?м|комп|компл|комплект)(?:$|[^\p{L}\p{N}_])`)
	packOfRE       = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])по\s+(\d+)\s*(шт|штук|кг|уп|упак|упаковку|кор|коробка|коробки|короб\p{L}*|рул|рол|рулон|м|пог\.?м|комп|компл|комплект)(?:$|[^\p{L}\p{N}_])`)
	numRE          = regexp.MustCompile(`\d+`)
	sizeRE         = regexp.MustCompile(`\d+x\d+`)
	codeRE         = regexp.MustCompile(`\((\d{3,5})\)`)
	dinRE          = regexp.MustCompile(`(?i)din\s*(\d{3,4})`)
	nonWordTokenRE = regexp.MustCompile(`[a-zа-я0-9x]+`)
	wordTokenRE    = regexp.MustCompile(`[a-zа-я0-9]+`)
)

var unitCanon = map[string]string{
	"шт": "шт", "штук": "шт",
	"уп": "уп", "упак": "уп", "упаковку": "уп",
	"кор": "кор", "коробка": "кор", "коробки": "кор",
	"рул": "рулон", "рол": "рулон", "рулон": "рулон",
	"компл": "комплект", "комплект": "комплект", "комп": "комплект",
	"пог.м": "пог.м",
	"м":      "м",
	"кг":     "кг",
}

var stopHeadWords = map[string]bool{
	"по": true, "и": true, "для": true, "на": true, "в": true, "с": true, "без": true,
	"шт": true, "уп": true, "кг": true, "м": true, "мм": true, "см": true, "кор": true, "короб": true, "рул": true,
}

var colorStems = []string{"беж", "сер", "бел", "черн", "син", "зел", "красн"}

func canonUnit(u string) string {
	u = strings.ToLower(u)
	if strings.HasPrefix(u, "короб") {
		return "кор"
	}
	if c, ok := unitCanon[u]; ok {
		return c
	}
	return u
}

func isColorWord(tok string) bool {
	for _, stem := range colorStems {
		if strings.HasPrefix(tok, stem) {
			return true
		}
	}
	return false
}

// Parse splits normalized text into items, extracting qty/unit/numbers and
// attributes per item, then propagates a head noun across elided items.
func Parse(normalizedText string) []*Item {
	var items []*Item
	for _, part := range splitRE.Split(normalizedText, -1) {
		raw := strings.TrimSpace(part)
		if raw == "" {
			continue
		}
		items = append(items, parsePart(raw))
	}
	return propagateHead(items)
}

func parsePart(raw string) *Item {
	item := &Item{Raw: raw, Normalized: raw, Attributes: map[string]string{}}

	qty, unit, cleaned, hadThousand := extractThousand(raw)
	if !hadThousand {
		qty, unit, cleaned = extractQtyUnit(raw)
	}
	item.Qty = qty
	item.Unit = unit

	if m := packOfRE.FindStringSubmatch(cleaned); m != nil {
		item.Attributes["pack_qty"] = m[1]
	}

	if m := sizeRE.FindString(cleaned); m != "" {
		item.Attributes["size"] = m
	}
	for _, stem := range colorStems {
		if strings.Contains(cleaned, stem) {
			item.Attributes["color"] = stem
			break
		}
	}
	if m := codeRE.FindStringSubmatch(cleaned); m != nil {
		item.Attributes["code"] = m[1]
	}
	if m := dinRE.FindStringSubmatch(cleaned); m != nil {
		item.Attributes["din"] = m[1]
	}

	numbers := extractNumbers(cleaned)
	if unit != "" {
		numbers = excludeQty(numbers, qty)
	}
	item.Numbers = numbers

	query := toQueryCore(cleaned)
	if query == "" {
		item.Normalized = PatchQuery
		item.IsPatch = true
		item.Query = ""
		item.QueryCore = ""
		return item
	}
	item.Query = query
	item.QueryCore = query
	return item
}

func extractThousand(text string) (qty int, unit string, cleaned string, matched bool) {
	loc := thousandRE.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, "", text, false
	}
	m := thousandRE.FindStringSubmatch(text)
	numStr := m[1]
	if numStr == "" {
		numStr = m[2]
	}
	n, _ := strconv.Atoi(numStr)
	cleaned = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return n * 1000, "шт", cleaned, true
}

func extractQtyUnit(text string) (qty int, unit string, cleaned string) {
	if m := packOfRE.FindStringSubmatchIndex(text); m != nil {
		sub := packOfRE.FindStringSubmatch(text)
		n, _ := strconv.Atoi(sub[1])
		return n, canonUnit(sub[2]), text
	}
	loc := qtyUnitRE.FindStringSubmatchIndex(text)
	if loc == nil {
		return 1, "", text
	}
	sub := qtyUnitRE.FindStringSubmatch(text)
	n, _ := strconv.Atoi(sub[1])
	cleaned = strings.TrimSpace(text[:loc[0]] + text[loc[5]:])
	return n, canonUnit(sub[2]), cleaned
}

func extractNumbers(text string) []int {
	matches := numRE.FindAllString(text, -1)
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func excludeQty(numbers []int, qty int) []int {
	out := make([]int, 0, len(numbers))
	removed := false
	for _, n := range numbers {
		if !removed && n == qty {
			removed = true
			continue
		}
		out = append(out, n)
	}
	return out
}

func toQueryCore(cleaned string) string {
	tokens := nonWordTokenRE.FindAllString(cleaned, -1)
	for len(tokens) > 0 && stopHeadWords[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.TrimSpace(strings.Join(tokens, " "))
}

func headToken(query string) string {
	tokens := wordTokenRE.FindAllString(query, -1)
	best := ""
	for _, tok := range tokens {
		if isDigits(tok) || stopHeadWords[tok] || isColorWord(tok) || len(tok) < 4 {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// propagateHead implements spec's two-pass fold: the first item with a head
// token seeds prev_head; any later item with no head token of its own but
// non-empty remainder gets that head prepended to its query and query_core.
func propagateHead(items []*Item) []*Item {
	var prevHead string
	for _, item := range items {
		if item.IsPatch {
			continue
		}
		head := headToken(item.Query)
		if head != "" {
			prevHead = head
			continue
		}
		if prevHead != "" && item.Query != "" {
			item.Query = strings.TrimSpace(prevHead + " " + item.Query)
			item.QueryCore = toQueryCore(item.Query)
			if item.QueryCore == "" {
				item.QueryCore = item.Query
			}
		}
	}
	return items
}
