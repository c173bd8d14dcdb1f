// Package synonym implements the global/tenant-scoped synonym table (C5):
// a merged {src -> dst} token rewrite map, Redis-cached per org, plus the
// guarded query-normalization pass that applies it.
//
// Grounded on _examples/original_source/app/services/search_aliases.py.
package synonym

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wholesale-bot/resolver/pkg/cache"
)

const cacheTTL = 600 * time.Second

// DefaultAliases are seeded as global (org_id NULL) rows on first run.
var DefaultAliases = map[string]string{
	"спандбонд": "спанбонд",
	"спандбон":  "спанбонд",
	"синтепонн": "синтепон",
	"ппу":       "поролон",
}

var (
	tokenRE         = regexp.MustCompile(`[\p{L}\p{N}_](?:[\p{L}\p{N}_-]*[\p{L}\p{N}_])?`)
	articleAnchorRE = regexp.MustCompile(`(?i)\b(?:st\d{3,6}|[a-z]{1,3}\d{2,6}|\d{5,})\b`)
)

// Table is the DB+cache backed synonym lookup.
type Table struct {
	db    *sql.DB
	cache *cache.Cache
}

// New builds a Table over an open connection pool and optional Redis cache
// (a disabled cache degrades to always-miss, which is safe here).
func New(db *sql.DB, c *cache.Cache) *Table {
	return &Table{db: db, cache: c}
}

func cacheKey(orgID *int64) string {
	if orgID == nil {
		return "search_alias_map:0"
	}
	return "search_alias_map:" + strconv.FormatInt(*orgID, 10)
}

// GetMap returns the merged {src -> dst} map for orgID (nil = global-only),
// reading through the 600s Redis cache and falling back to the seeded
// defaults plus live rows on cache miss or DB error.
func (t *Table) GetMap(ctx context.Context, orgID *int64) (map[string]string, error) {
	key := cacheKey(orgID)

	if cached, ok := t.cache.Get(ctx, key); ok {
		var m map[string]string
		if err := json.Unmarshal([]byte(cached), &m); err == nil {
			return m, nil
		}
	}

	result, err := t.loadFromDB(ctx, orgID)
	if err != nil {
		result = map[string]string{}
	}

	merged := make(map[string]string, len(DefaultAliases)+len(result))
	for k, v := range DefaultAliases {
		merged[k] = v
	}
	for k, v := range result {
		merged[k] = v
	}

	if encoded, err := json.Marshal(merged); err == nil {
		t.cache.Set(ctx, key, string(encoded), cacheTTL)
	}
	return merged, nil
}

func (t *Table) loadFromDB(ctx context.Context, orgID *int64) (map[string]string, error) {
	result := map[string]string{}

	globalRows, err := t.db.QueryContext(ctx, `
		SELECT src, dst FROM search_aliases
		WHERE enabled AND org_id IS NULL AND kind = 'token'`)
	if err != nil {
		return nil, err
	}
	if err := collectInto(globalRows, result); err != nil {
		return nil, err
	}

	if orgID != nil {
		orgRows, err := t.db.QueryContext(ctx, `
			SELECT src, dst FROM search_aliases
			WHERE enabled AND org_id = $1 AND kind = 'token'`, *orgID)
		if err != nil {
			return nil, err
		}
		if err := collectInto(orgRows, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func collectInto(rows *sql.Rows, into map[string]string) error {
	defer rows.Close()
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return err
		}
		into[src] = dst
	}
	return rows.Err()
}

// Invalidate deletes the cache entry for orgID.
func (t *Table) Invalidate(ctx context.Context, orgID *int64) {
	t.cache.Delete(ctx, cacheKey(orgID))
}

// NormalizeQuery tokenizes text into runs of letters, digits, underscores
// and inner hyphens, rewrites each token through
// aliasMap, and returns the rewritten text plus the map of tokens that were
// actually changed. The "ппу" -> "поролон" default only fires for short
// queries (≤ 3 tokens) that lack an article anchor (STddd, <letter>ddd, or
// a ≥ 5-digit run) — longer or anchored queries likely mean the literal
// material code, not the foam.
func NormalizeQuery(text string, aliasMap map[string]string) (string, map[string]string) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return "", map[string]string{}
	}
	lower := strings.ToLower(raw)
	tokens := tokenRE.FindAllString(lower, -1)
	applied := map[string]string{}
	normalized := make([]string, 0, len(tokens))

	shortQuery := len(tokens) <= 3 && !articleAnchorRE.MatchString(lower)

	for _, token := range tokens {
		replacement := token
		if v, ok := aliasMap[token]; ok {
			replacement = v
		}
		if token == "ппу" && shortQuery {
			if v, ok := aliasMap[token]; ok {
				replacement = v
			} else {
				replacement = "поролон"
			}
		}
		if replacement != token {
			applied[token] = replacement
		}
		normalized = append(normalized, replacement)
	}

	return strings.TrimSpace(strings.Join(normalized, " ")), applied
}
