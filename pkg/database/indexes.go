package database

import (
	"context"
	"database/sql"
	"fmt"
)

// createSearchIndexes creates trigram GIN indexes backing the catalog
// index's (C8) heavy ILIKE substring filtering over product titles and
// SKUs. These are not expressible as plain golang-migrate CREATE INDEX
// statements without first enabling pg_trgm, so they run once after
// migrations, mirroring the teacher's post-migration GIN index step.
func createSearchIndexes(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`); err != nil {
		return fmt.Errorf("failed to enable pg_trgm: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_products_title_ru_trgm
		ON products USING gin (title_ru gin_trgm_ops)`); err != nil {
		return fmt.Errorf("failed to create title_ru trigram index: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_products_sku_trgm
		ON products USING gin (sku gin_trgm_ops)`); err != nil {
		return fmt.Errorf("failed to create sku trigram index: %w", err)
	}

	return nil
}
