// Package history implements per-(org, product) order statistics (C6,
// written by the ERP ingest collaborator) and the scored history retriever
// (C7) the pipeline uses to surface previously-ordered products.
//
// C6 is grounded on
// _examples/original_source/app/services/history_candidates.py. C7 has no
// original_source counterpart — it is authored directly from spec §4.6's
// tokenize/filter/score algorithm.
package history

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"
)

// Stats is the DB-backed OrgProductStats repository (C6).
type Stats struct {
	db *sql.DB
}

// NewStats builds a Stats repository over an open connection pool.
func NewStats(db *sql.DB) *Stats {
	return &Stats{db: db}
}

// OrderedLine is one line of a confirmed order, as reported by the ERP
// ingest collaborator.
type OrderedLine struct {
	ProductID int64
	Qty       float64
	Unit      string
	OrderedAt time.Time
}

// Upsert records one ordered line: incrementing orders_count and qty_sum,
// and replacing last_order_at/last_qty/last_unit when OrderedAt is not
// older than what is already stored.
func (s *Stats) Upsert(ctx context.Context, orgID int64, line OrderedLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_product_stats (org_id, product_id, orders_count, qty_sum, last_order_at, last_qty, last_unit)
		VALUES ($1, $2, 1, $3, $4, $3, $5)
		ON CONFLICT (org_id, product_id) DO UPDATE SET
			orders_count = org_product_stats.orders_count + 1,
			qty_sum = org_product_stats.qty_sum + EXCLUDED.qty_sum,
			last_order_at = CASE
				WHEN org_product_stats.last_order_at IS NULL OR EXCLUDED.last_order_at >= org_product_stats.last_order_at
				THEN EXCLUDED.last_order_at ELSE org_product_stats.last_order_at END,
			last_qty = CASE
				WHEN org_product_stats.last_order_at IS NULL OR EXCLUDED.last_order_at >= org_product_stats.last_order_at
				THEN EXCLUDED.last_qty ELSE org_product_stats.last_qty END,
			last_unit = CASE
				WHEN org_product_stats.last_order_at IS NULL OR EXCLUDED.last_order_at >= org_product_stats.last_order_at
				THEN EXCLUDED.last_unit ELSE org_product_stats.last_unit END`,
		orgID, line.ProductID, line.Qty, line.OrderedAt, line.Unit)
	return err
}

// CandidateIDs returns up to limit product ids the org has ordered before,
// most-ordered and most-recent first.
func (s *Stats) CandidateIDs(ctx context.Context, orgID int64, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id FROM org_product_stats
		WHERE org_id = $1
		ORDER BY orders_count DESC, last_order_at DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// candidateRow is the denormalized (stats, product) join row the scored
// retriever scans.
type candidateRow struct {
	ProductID   int64
	SKU         string
	TitleRu     string
	Price       float64
	StockQty    int
	OrdersCount int
	LastOrderAt sql.NullTime
}

// LoadCandidateRows loads up to 3000 org_product_stats rows joined with
// Product, ordered by orders_count desc, last_order_at desc, per §4.6 step 2.
func (s *Stats) LoadCandidateRows(ctx context.Context, orgID int64) ([]candidateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, COALESCE(p.sku, ''), p.title_ru, p.price, p.stock_qty, ops.orders_count, ops.last_order_at
		FROM org_product_stats ops
		JOIN products p ON p.id = ops.product_id
		WHERE ops.org_id = $1
		ORDER BY ops.orders_count DESC, ops.last_order_at DESC
		LIMIT 3000`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var r candidateRow
		if err := rows.Scan(&r.ProductID, &r.SKU, &r.TitleRu, &r.Price, &r.StockQty, &r.OrdersCount, &r.LastOrderAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Scored is one scored history hit (C7's output shape).
type Scored struct {
	ID                int64
	SKU               string
	TitleRu           string
	Price             float64
	StockQty          int
	Score             float64
	AttributeConflict bool
}

var stopTokens = map[string]bool{
	"по": true, "и": true, "для": true, "на": true, "в": true, "с": true, "без": true,
	"шт": true, "уп": true, "кг": true, "м": true, "мм": true, "см": true,
}

var colorStems = []string{"беж", "сер", "бел", "черн", "син", "зел", "красн"}

func isColor(tok string) bool {
	for _, stem := range colorStems {
		if strings.HasPrefix(tok, stem) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func tokenizeWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= 'а' && r <= 'я') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

// queryTokens is the tokenized-query shape step 1 of §4.6 computes.
type queryTokens struct {
	Anchors     []string
	Optional    []string
	Numbers     []string
	WithSprings bool
}

func tokenizeQuery(queryCore, fullText string) queryTokens {
	words := tokenizeWords(queryCore)

	var anchors, optional, numbers []string
	for _, w := range words {
		if isDigits(w) {
			numbers = append(numbers, w)
			continue
		}
		if stopTokens[w] || isColor(w) {
			optional = append(optional, w)
			continue
		}
		if len(w) >= 4 && len(anchors) < 2 {
			anchors = append(anchors, w)
			continue
		}
		optional = append(optional, w)
	}

	withSprings := strings.Contains(fullText, "пружин") && !strings.Contains(fullText, "без пружин")

	return queryTokens{Anchors: anchors, Optional: optional, Numbers: numbers, WithSprings: withSprings}
}

func hasPrefixMatch(token string, words map[string]bool) bool {
	for w := range words {
		if w == token || strings.HasPrefix(w, token) {
			return true
		}
	}
	return false
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func intersectionCount(tokens []string, words map[string]bool) int {
	count := 0
	for _, t := range tokens {
		if words[t] {
			count++
		}
	}
	return count
}

// Score runs the §4.6 scored history retriever: tokenizes queryCore,
// loads up to 3000 candidate rows for orgID, filters to rows whose title/sku
// satisfy every required number and anchor, scores survivors, and returns
// the top limit sorted by score descending.
func (s *Stats) Score(ctx context.Context, orgID int64, queryCore string, limit int) ([]Scored, error) {
	qt := tokenizeQuery(queryCore, queryCore)

	rows, err := s.LoadCandidateRows(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var scored []Scored
	for _, row := range rows {
		words := wordSet(tokenizeWords(row.TitleRu + " " + row.SKU))

		ok := true
		for _, n := range qt.Numbers {
			if !words[n] {
				ok = false
				break
			}
		}
		if ok {
			for _, a := range qt.Anchors {
				if !hasPrefixMatch(a, words) {
					ok = false
					break
				}
			}
		}
		if !ok {
			continue
		}

		daysSinceLast := 3650.0
		if row.LastOrderAt.Valid {
			daysSinceLast = now.Sub(row.LastOrderAt.Time).Hours() / 24
			if daysSinceLast < 0 {
				daysSinceLast = 0
			}
		}

		conflict := qt.WithSprings && strings.Contains(strings.ToLower(row.TitleRu), "без пружин")

		score := math.Log1p(float64(row.OrdersCount)) +
			1/(1+daysSinceLast/30) +
			0.35*float64(intersectionCount(qt.Optional, words))
		if conflict {
			score -= 0.8
		}

		scored = append(scored, Scored{
			ID:                row.ProductID,
			SKU:               row.SKU,
			TitleRu:           row.TitleRu,
			Price:             row.Price,
			StockQty:          row.StockQty,
			Score:             score,
			AttributeConflict: conflict,
		})
	}

	sortScoredDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func sortScoredDesc(items []Scored) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && items[j-1].Score < items[j].Score {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}
