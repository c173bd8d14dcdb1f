// Package catalog implements the catalog index (C8): deterministic
// token-AND / number-AND substring retrieval over product titles and SKUs,
// with a strict post-filter and a heuristic rank.
//
// Grounded on _examples/original_source/app/services/search.py
// (search_products and its helpers; the LLM-backed llm_search fallback at
// the bottom of that file is out of scope here — that concern belongs to
// C9, not the deterministic index).
package catalog

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	tokenRE    = regexp.MustCompile(`(?i)[a-zа-я0-9]+`)
	nonAlnumRE = regexp.MustCompile(`(?i)[^a-zа-я0-9]+`)
	spaceRE    = regexp.MustCompile(`\s+`)
	sizeRE     = regexp.MustCompile(`(\d+)\s*[xх*]\s*(\d+)`)
)

var stopWords = map[string]bool{
	"шт": true, "штук": true, "кор": true, "короб": true, "коробка": true, "коробочки": true,
	"рул": true, "рулон": true, "рулонная": true, "уп": true, "упак": true, "упаковка": true,
	"мм": true, "см": true, "м": true, "м2": true, "кг": true, "гр": true, "г": true,
	"тип": true, "номер": true, "цвет": true, "№": true,
}

var qtyUnitTokens = map[string]bool{
	"шт": true, "штук": true, "кор": true, "короб": true, "коробка": true, "коробочки": true,
	"рул": true, "рулон": true, "рулонная": true, "уп": true, "упак": true, "упаковка": true,
	"мм": true, "см": true, "м": true, "м2": true, "кг": true, "гр": true, "г": true,
}

var colorStemMap = map[string]string{
	"беж": "бежев", "сер": "сер", "бел": "бел", "черн": "черн", "син": "син", "зел": "зел",
}

const prefetchLimit = 100

// Result is one ranked catalog hit.
type Result struct {
	ID         int64
	SKU        string
	TitleRu    string
	Price      float64
	StockQty   int
	CategoryID sql.NullInt64
	Score      float64
}

// Index is the DB-backed deterministic catalog retriever.
type Index struct {
	db *sql.DB
}

// New builds an Index over an open connection pool.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// normalizeQueryText lower-cases, folds ё->е, replaces non-alphanumeric runs
// with a space, and collapses whitespace.
func normalizeQueryText(text string) string {
	normalized := strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	normalized = nonAlnumRE.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(spaceRE.ReplaceAllString(normalized, " "))
}

// NormalizeQueryText exports normalizeQueryText for callers outside the
// package (the orchestrator uses the same normalization for its trace).
func NormalizeQueryText(text string) string {
	return normalizeQueryText(text)
}

func extractNumbers(text string) []int {
	var out []int
	for _, tok := range tokenRE.FindAllString(text, -1) {
		if n, err := strconv.Atoi(tok); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func extractTokens(text string) []string {
	var out []string
	for _, tok := range tokenRE.FindAllString(text, -1) {
		if _, isNum := numOnly(tok); isNum || stopWords[tok] {
			continue
		}
		if len([]rune(tok)) <= 2 {
			continue
		}
		if stem, ok := colorStemMap[tok]; ok {
			out = append(out, stem)
			continue
		}
		out = append(out, tok)
	}
	return out
}

func numOnly(tok string) (int, bool) {
	n, err := strconv.Atoi(tok)
	return n, err == nil
}

func tokenMatchesWords(token string, words []string) bool {
	for _, w := range words {
		if w == token || strings.HasPrefix(w, token) {
			return true
		}
	}
	return false
}

// effectiveNumbers drops the single number present when the query also
// carries a qty/unit token — that number is almost always the requested
// quantity, not a model/size digit, so it must not constrain the filter.
func effectiveNumbers(queryText string, numbers []int) []int {
	if len(numbers) == 0 {
		return numbers
	}
	hasQtyUnit := false
	for _, tok := range tokenRE.FindAllString(queryText, -1) {
		if qtyUnitTokens[tok] {
			hasQtyUnit = true
			break
		}
	}
	if hasQtyUnit && len(numbers) == 1 {
		return nil
	}
	return numbers
}

// Search runs the §4.7 algorithm: normalize, extract numbers/tokens, build
// an AND-filtered SQL prefetch (optionally restricted to categoryIDs and/or
// productIDs), retry with the size pair on an empty 3+-number result, apply
// the strict post-filter, score, and return the top limit.
func (idx *Index) Search(ctx context.Context, query string, limit int, categoryIDs, productIDs []int64) ([]Result, error) {
	original := strings.ToLower(strings.TrimSpace(query))
	normalized := normalizeQueryText(query)
	numbers := extractNumbers(normalized)
	tokens := extractTokens(normalized)
	effNumbers := effectiveNumbers(normalized, numbers)

	rows, err := idx.prefetch(ctx, normalized, effNumbers, tokens, categoryIDs, productIDs)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 && len(effNumbers) >= 3 {
		mainNumbers := sizePairOrFirstTwo(original, effNumbers)
		rows, err = idx.prefetchByNumbers(ctx, mainNumbers, categoryIDs, productIDs)
		if err != nil {
			return nil, err
		}
	}

	if len(effNumbers) > 0 {
		rows = filterByNumbers(rows, effNumbers)
	}
	if len(tokens) > 0 {
		rows = filterByTokens(rows, tokens)
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, Result{
			ID: r.ID, SKU: r.SKU, TitleRu: r.TitleRu, Price: r.Price, StockQty: r.StockQty,
			CategoryID: r.CategoryID,
			Score:      score(r, normalized, numbers, original),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sizePairOrFirstTwo(original string, numbers []int) []int {
	if m := sizeRE.FindStringSubmatch(original); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return []int{a, b}
	}
	if len(numbers) >= 2 {
		return numbers[:2]
	}
	return numbers
}

type row struct {
	ID         int64
	SKU        string
	TitleRu    string
	Price      float64
	StockQty   int
	CategoryID sql.NullInt64
}

func (idx *Index) prefetch(ctx context.Context, normalized string, numbers []int, tokens []string, categoryIDs, productIDs []int64) ([]row, error) {
	var where []string
	var args []any
	argN := 0
	next := func() int { argN++; return argN }

	switch {
	case len(numbers) > 0:
		for _, n := range numbers {
			idxArg := next()
			where = append(where, "title_ru ILIKE '%' || $"+strconv.Itoa(idxArg)+" || '%'")
			args = append(args, strconv.Itoa(n))
		}
	case len(tokens) >= 2:
		for _, t := range tokens[:min(len(tokens), 4)] {
			idxArg := next()
			where = append(where, "title_ru ILIKE '%' || $"+strconv.Itoa(idxArg)+" || '%'")
			args = append(args, t)
		}
	case len(tokens) == 1:
		idxArg := next()
		where = append(where, "title_ru ILIKE '%' || $"+strconv.Itoa(idxArg)+" || '%'")
		args = append(args, tokens[0])
	default:
		idxArg := next()
		where = append(where, "title_ru ILIKE '%' || $"+strconv.Itoa(idxArg)+" || '%'")
		args = append(args, normalized)
	}

	if len(categoryIDs) > 0 {
		idxArg := next()
		where = append(where, "category_id = ANY($"+strconv.Itoa(idxArg)+"::bigint[])")
		args = append(args, int64ArrayLiteral(categoryIDs))
	}
	if len(productIDs) > 0 {
		idxArg := next()
		where = append(where, "id = ANY($"+strconv.Itoa(idxArg)+"::bigint[])")
		args = append(args, int64ArrayLiteral(productIDs))
	}

	query := "SELECT id, COALESCE(sku, ''), title_ru, price, stock_qty, category_id FROM products WHERE " +
		strings.Join(where, " AND ") + " LIMIT " + strconv.Itoa(prefetchLimit)
	return idx.query(ctx, query, args...)
}

func (idx *Index) prefetchByNumbers(ctx context.Context, numbers []int, categoryIDs, productIDs []int64) ([]row, error) {
	var where []string
	var args []any
	argN := 0
	next := func() int { argN++; return argN }

	for _, n := range numbers {
		idxArg := next()
		where = append(where, "title_ru ILIKE '%' || $"+strconv.Itoa(idxArg)+" || '%'")
		args = append(args, strconv.Itoa(n))
	}
	if len(categoryIDs) > 0 {
		idxArg := next()
		where = append(where, "category_id = ANY($"+strconv.Itoa(idxArg)+"::bigint[])")
		args = append(args, int64ArrayLiteral(categoryIDs))
	}
	if len(productIDs) > 0 {
		idxArg := next()
		where = append(where, "id = ANY($"+strconv.Itoa(idxArg)+"::bigint[])")
		args = append(args, int64ArrayLiteral(productIDs))
	}
	if len(where) == 0 {
		return nil, nil
	}
	query := "SELECT id, COALESCE(sku, ''), title_ru, price, stock_qty, category_id FROM products WHERE " +
		strings.Join(where, " AND ") + " LIMIT " + strconv.Itoa(prefetchLimit)
	return idx.query(ctx, query, args...)
}

func (idx *Index) query(ctx context.Context, query string, args ...any) ([]row, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.SKU, &r.TitleRu, &r.Price, &r.StockQty, &r.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func filterByNumbers(rows []row, numbers []int) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		title := strings.ToLower(r.TitleRu)
		ok := true
		for _, n := range numbers {
			if !strings.Contains(title, strconv.Itoa(n)) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func filterByTokens(rows []row, tokens []string) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		words := append(tokenRE.FindAllString(normalizeQueryText(r.TitleRu), -1),
			tokenRE.FindAllString(normalizeQueryText(r.SKU), -1)...)
		ok := true
		for _, t := range tokens {
			if !tokenMatchesWords(t, words) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func score(r row, query string, numbers []int, original string) float64 {
	s := 0.0
	title := strings.ToLower(r.TitleRu)
	sku := strings.ToLower(r.SKU)
	if sku != "" && strings.Contains(sku, query) {
		s += 3.0
	}
	if strings.Contains(title, query) {
		s += 1.5
	}
	for _, n := range numbers {
		if strings.Contains(title, strconv.Itoa(n)) {
			s += 0.5
		}
	}
	if strings.Contains(original, "din") && contains(numbers, 933) && strings.Contains(title, "din") && strings.Contains(title, "933") {
		s += 2.5
	}
	return s
}

func contains(numbers []int, n int) bool {
	for _, v := range numbers {
		if v == n {
			return true
		}
	}
	return false
}

func int64ArrayLiteral(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
