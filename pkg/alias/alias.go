// Package alias implements the per-tenant learned alias store (C4):
// normalization, upsert-with-monotone-weight, autolearn gating, and
// candidate lookup with an ILIKE fallback.
//
// Grounded on _examples/original_source/app/services/org_aliases.py.
package alias

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

const maxAliasLength = 255

var (
	spacesRE  = regexp.MustCompile(`\s+`)
	qtyUnitRE = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:т\.?\s*шт|т\s*шт|тыс\.?\s*шт|шт|кг|кор(?:обка)?|уп(?:ак)?|рулон|рол(?:ик)?|пог\.?\s*м|м)(?:$|[^\p{L}\p{N}_])`)
	nonWordRE = regexp.MustCompile(`[^\p{L}\p{N}\s-]+`)
	digitsRE  = regexp.MustCompile(`\d+`)
	letterRE  = regexp.MustCompile(`(?i)[a-zа-я]`)
)

var autolearnStopwords = map[string]bool{
	"ок": true, "спасибо": true, "привет": true, "здравствуйте": true, "да": true, "нет": true,
}

// Normalize strips qty/unit tokens and collapses whitespace, truncating to
// the 255-char storage bound.
func Normalize(text string) string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = qtyUnitRE.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spacesRE.ReplaceAllString(cleaned, " "))
	return truncate(cleaned)
}

// NormalizeForAutolearn applies the stricter autolearn normalization: also
// strips punctuation, folds hyphens to spaces, and rejects stop-phrases,
// too-short strings, and strings with no letters unless they carry ≥ 2
// numbers. Returns "" when the text is rejected.
func NormalizeForAutolearn(text string) string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = qtyUnitRE.ReplaceAllString(cleaned, " ")
	cleaned = strings.ReplaceAll(cleaned, "-", " ")
	cleaned = nonWordRE.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spacesRE.ReplaceAllString(cleaned, " "))

	if cleaned == "" || autolearnStopwords[cleaned] {
		return ""
	}
	if !letterRE.MatchString(cleaned) {
		if len(digitsRE.FindAllString(cleaned, -1)) < 2 {
			return ""
		}
	}
	if len([]rune(cleaned)) < 4 {
		return ""
	}
	return truncate(cleaned)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxAliasLength {
		return string(r[:maxAliasLength])
	}
	return s
}

// Store is the DB-backed alias repository.
type Store struct {
	db *sql.DB
}

// New builds a Store over an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert normalizes alias_text and either bumps the weight of an identical
// (org_id, normalized_alias, product_id) row or inserts a fresh one with
// weight 1. Weight is monotone non-decreasing by construction.
func (s *Store) Upsert(ctx context.Context, orgID int64, aliasText string, productID int64) error {
	normalized := Normalize(aliasText)
	if normalized == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_aliases (org_id, alias_text, normalized_alias, product_id, weight, last_used_at)
		VALUES ($1, $2, $3, $4, 1, now())
		ON CONFLICT (org_id, normalized_alias, product_id)
		DO UPDATE SET weight = org_aliases.weight + 1, last_used_at = now()`,
		orgID, truncate(aliasText), normalized, productID)
	return err
}

// Autolearn applies the stricter normalization and, on acceptance, calls
// Upsert and reports true; rejected phrases report false without writing.
func (s *Store) Autolearn(ctx context.Context, orgID int64, aliasText string, productID int64) (bool, error) {
	normalized := NormalizeForAutolearn(aliasText)
	if normalized == "" {
		return false, nil
	}
	if err := s.Upsert(ctx, orgID, normalized, productID); err != nil {
		return false, err
	}
	return true, nil
}

// FindCandidates normalizes phrase and returns product ids whose
// normalized_alias equals it exactly, ordered by weight desc, last_used_at
// desc; falling back to an ILIKE substring match with the same ordering
// when the exact match is empty.
func (s *Store) FindCandidates(ctx context.Context, orgID int64, phrase string, limit int) ([]int64, error) {
	normalized := Normalize(phrase)
	if normalized == "" {
		return nil, nil
	}

	exact, err := s.queryProductIDs(ctx, `
		SELECT product_id FROM org_aliases
		WHERE org_id = $1 AND normalized_alias = $2
		ORDER BY weight DESC, last_used_at DESC
		LIMIT $3`, orgID, normalized, limit)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	return s.queryProductIDs(ctx, `
		SELECT product_id FROM org_aliases
		WHERE org_id = $1 AND normalized_alias ILIKE '%' || $2 || '%'
		ORDER BY weight DESC, last_used_at DESC
		LIMIT $3`, orgID, normalized, limit)
}

func (s *Store) queryProductIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
