package llmaug

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/wholesale-bot/resolver/pkg/cache"
)

const (
	manifestCacheKey = "category_manifest:v1"
	manifestCacheTTL = 600 * time.Second
	exampleShortLen  = 60
)

// CategoryManifestEntry is one node of the flattened category tree, with a
// slash-joined display path and a handful of product-title examples.
type CategoryManifestEntry struct {
	CategoryID  int64    `json:"category_id"`
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	CountDirect int      `json:"count_direct"`
	Examples    []string `json:"examples"`
}

// Manifest builds (or reads through the Redis cache for) the category
// manifest: every category, its display path, direct product count, and up
// to 5 example titles.
//
// Grounded on
// _examples/original_source/app/services/category_manifest.py.
func Manifest(ctx context.Context, db *sql.DB, c *cache.Cache) ([]CategoryManifestEntry, error) {
	if cached, ok := c.Get(ctx, manifestCacheKey); ok {
		var entries []CategoryManifestEntry
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			return entries, nil
		}
	}

	entries, err := buildManifest(ctx, db)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(entries); err == nil {
		c.Set(ctx, manifestCacheKey, string(encoded), manifestCacheTTL)
	}
	return entries, nil
}

type categoryRow struct {
	ID       int64
	ParentID sql.NullInt64
	TitleRu  string
}

func buildManifest(ctx context.Context, db *sql.DB) ([]CategoryManifestEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, parent_id, title_ru FROM categories`)
	if err != nil {
		return nil, err
	}
	var categories []categoryRow
	byID := map[int64]categoryRow{}
	for rows.Next() {
		var c categoryRow
		if err := rows.Scan(&c.ID, &c.ParentID, &c.TitleRu); err != nil {
			rows.Close()
			return nil, err
		}
		categories = append(categories, c)
		byID[c.ID] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	countRows, err := db.QueryContext(ctx, `
		SELECT category_id, COUNT(*) FROM products
		WHERE category_id IS NOT NULL GROUP BY category_id`)
	if err != nil {
		return nil, err
	}
	counts := map[int64]int{}
	for countRows.Next() {
		var id int64
		var n int
		if err := countRows.Scan(&id, &n); err != nil {
			countRows.Close()
			return nil, err
		}
		counts[id] = n
	}
	countRows.Close()
	if err := countRows.Err(); err != nil {
		return nil, err
	}

	entries := make([]CategoryManifestEntry, 0, len(categories))
	for _, c := range categories {
		examples, err := exampleTitles(ctx, db, c.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CategoryManifestEntry{
			CategoryID:  c.ID,
			Path:        buildPath(c, byID),
			Title:       c.TitleRu,
			CountDirect: counts[c.ID],
			Examples:    examples,
		})
	}
	return entries, nil
}

func exampleTitles(ctx context.Context, db *sql.DB, categoryID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT title_ru FROM products WHERE category_id = $1 ORDER BY title_ru LIMIT 5`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, shorten(t, exampleShortLen))
	}
	return titles, rows.Err()
}

// buildPath walks parent links building a root-to-leaf display path,
// truncating on a detected cycle rather than looping forever — manifests
// are best-effort display data, not an integrity check.
func buildPath(category categoryRow, byID map[int64]categoryRow) string {
	parts := []string{category.TitleRu}
	visited := map[int64]bool{category.ID: true}
	current := category
	for current.ParentID.Valid {
		parentID := current.ParentID.Int64
		if visited[parentID] {
			break
		}
		parent, ok := byID[parentID]
		if !ok {
			break
		}
		parts = append(parts, parent.TitleRu)
		visited[parentID] = true
		current = parent
	}
	reversed := make([]string, len(parts))
	for i, p := range parts {
		reversed[len(parts)-1-i] = p
	}
	return strings.Join(reversed, "/")
}

func shorten(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return strings.TrimRight(string(r[:limit-1]), " ") + "…"
}
