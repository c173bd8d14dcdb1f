// Package clarify implements the clarification builder (C10): head-token
// history suggestions (no candidates), facet-entropy suggestions (too many
// candidates), and the options paginator.
//
// Head-suggestions are grounded on
// _examples/original_source/app/services/clarify.py. Facet-suggestions
// have no original_source counterpart and are authored directly from
// spec §4.9's bucket/entropy algorithm.
package clarify

import (
	"context"
	"database/sql"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	defaultPageSize = 10
	maxFacetValues  = 30
	shortLabelLen   = 56
)

var tokenRE = regexp.MustCompile(`(?i)[a-zа-я0-9]+`)

var stopTokens = map[string]bool{
	"по": true, "и": true, "для": true, "на": true, "в": true, "с": true, "без": true,
	"шт": true, "штук": true, "кг": true, "мм": true, "см": true, "тип": true, "нужно": true,
	"добавь": true, "добавить": true,
}

func tokenize(query string) []string {
	tokens := tokenRE.FindAllString(query, -1)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}

// ExtractHeadToken returns the first non-stop, non-digit, ≥4-char token in
// query, or "" if none qualifies.
func ExtractHeadToken(query string) string {
	for _, token := range tokenize(query) {
		if stopTokens[token] || isDigits(token) || len([]rune(token)) < 4 {
			continue
		}
		return token
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func shortLabel(title string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(title), " ")
	r := []rune(cleaned)
	if len(r) <= maxLen {
		return cleaned
	}
	return strings.TrimRight(string(r[:maxLen-1]), " ") + "…"
}

// Suggestion is one raw candidate before pagination: an id and a display
// title, ready to become an option.
type Suggestion struct {
	ProductID int64
	Title     string
}

// HistorySuggestions finds up to limit history products for orgID whose
// title contains token, most-ordered and most-recent first.
func HistorySuggestions(ctx context.Context, db *sql.DB, orgID int64, token string, limit int) ([]Suggestion, error) {
	if token == "" {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.title_ru
		FROM products p
		JOIN org_product_stats ops ON ops.product_id = p.id
		WHERE ops.org_id = $1 AND p.title_ru ILIKE '%' || $2 || '%'
		ORDER BY ops.orders_count DESC, ops.last_order_at DESC
		LIMIT $3`, orgID, token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.ProductID, &s.Title); err != nil {
			return nil, err
		}
		if s.Title != "" {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

// Option is one clarification choice.
type Option struct {
	ID                string
	Label             string
	AppendTokens      []string
	RestrictCategoryIDs []int64
}

// Clarification is the paginated clarification payload, matching the
// stable response shape described in SPEC_FULL.md §6.
type Clarification struct {
	Question   string
	Reason     string
	Options    []Option
	Offset     int
	NextOffset *int
	PrevOffset *int
	Total      int
}

// BuildFromSuggestions paginates suggestions into a clarification. With no
// suggestions at all it returns a clarification with empty options so the
// dialog layer can fall back to a plain "couldn't find it" message.
func BuildFromSuggestions(reason string, suggestions []Suggestion, offset, pageSize int) Clarification {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	total := len(suggestions)
	if total == 0 {
		return Clarification{
			Question: "Не нашёл точный вариант. Уточни товар/артикул:",
			Reason:   reason,
			Options:  nil,
			Total:    0,
		}
	}

	safeOffset := clamp(offset, 0, total-1)
	end := safeOffset + pageSize
	if end > total {
		end = total
	}
	page := suggestions[safeOffset:end]

	options := make([]Option, 0, len(page))
	for i, item := range page {
		options = append(options, Option{
			ID:           "opt_" + itoa(safeOffset+i+1),
			Label:        shortLabel(item.Title, shortLabelLen),
			AppendTokens: []string{item.Title},
		})
	}

	var nextOffset, prevOffset *int
	if safeOffset+pageSize < total {
		v := safeOffset + pageSize
		nextOffset = &v
	}
	if safeOffset-pageSize >= 0 {
		v := safeOffset - pageSize
		prevOffset = &v
	} else if safeOffset > 0 {
		v := 0
		prevOffset = &v
	}

	question := "Уточни товар:"
	if reason != "no_candidates" {
		question = "Нашёл много вариантов. Уточни товар:"
	}

	return Clarification{
		Question: question, Reason: reason, Options: options,
		Offset: safeOffset, NextOffset: nextOffset, PrevOffset: prevOffset, Total: total,
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// Candidate is a catalog hit the facet generator buckets.
type Candidate struct {
	ID      int64
	TitleRu string
}

var facetPatterns = map[string]*regexp.Regexp{
	"цвет":   regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])((?:беж|сер|бел|черн|син|зел|красн)[\p{L}\p{N}_]*)`),
	"размер": regexp.MustCompile(`\d+x\d+`),
	"код":    regexp.MustCompile(`\((\d{3,5})\)`),
	"тип":    regexp.MustCompile(`(?i)\b(din\s*\d{3,4})\b`),
}

// facetOrder fixes bucket iteration order so ties between equal-entropy
// buckets resolve deterministically (цвет before размер before код before
// тип), matching the priority implied by spec §4.9's listing order.
var facetOrder = []string{"цвет", "размер", "код", "тип"}

// FacetSuggestions buckets candidate titles by {цвет, размер, код, тип} via
// regex, computes Shannon entropy per bucket with cardinality ≥ 2, and
// returns up to maxFacetValues values from the highest-entropy bucket as
// suggestions whose apply clause restricts by that facet value (expressed
// here as append-token suggestions the pipeline layer turns into a
// restrict filter). Returns ("", nil) when no bucket qualifies.
func FacetSuggestions(candidates []Candidate) (bucket string, values []string) {
	buckets := map[string][]string{}
	for _, c := range candidates {
		for _, name := range facetOrder {
			re := facetPatterns[name]
			m := re.FindStringSubmatch(strings.ToLower(c.TitleRu))
			if m == nil {
				continue
			}
			value := m[0]
			if name == "цвет" {
				value = m[1]
			}
			buckets[name] = append(buckets[name], value)
		}
	}

	bestEntropy := -1.0
	for _, name := range facetOrder {
		vals := buckets[name]
		distinct := distinctValues(vals)
		if len(distinct) < 2 {
			continue
		}
		entropy := shannonEntropy(vals)
		if entropy > bestEntropy {
			bestEntropy = entropy
			bucket = name
			values = rankedDistinct(vals)
		}
	}

	if bucket == "" {
		return "", nil
	}
	if len(values) > maxFacetValues {
		values = values[:maxFacetValues]
	}
	return bucket, values
}

func distinctValues(values []string) map[string]int {
	counts := map[string]int{}
	for _, v := range values {
		counts[v]++
	}
	return counts
}

func shannonEntropy(values []string) float64 {
	counts := distinctValues(values)
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// rankedDistinct returns distinct values ordered by descending frequency,
// ties broken by first appearance.
func rankedDistinct(values []string) []string {
	counts := distinctValues(values)
	order := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order
}
