package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/test/dbtest"
)

func TestIndexSearchFindsSeededProductAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}
	client := dbtest.NewTestClient(t)
	db := client.DB()
	ctx := context.Background()

	var productID int64
	sku := "IDX-TEST-001"
	err := db.QueryRowContext(ctx,
		`INSERT INTO products (sku, title_ru, stock_qty, price) VALUES ($1, $2, 5, 120.50) RETURNING id`,
		sku, "Болт М8 оцинкованный",
	).Scan(&productID)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM products WHERE id = $1`, productID)
	})

	idx := catalog.New(db)
	results, err := idx.Search(ctx, "болт м8", 10, nil, nil)
	require.NoError(t, err)

	var found bool
	for _, r := range results {
		if r.ID == productID {
			found = true
			assert.Equal(t, sku, r.SKU)
		}
	}
	assert.True(t, found, "expected seeded product to appear in search results")
}
