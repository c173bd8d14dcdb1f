// Package models holds the data-model entities of §3 and the hand-written
// pgx repository methods that read and write them. There is no generated
// ORM layer here — see DESIGN.md for why entgo.io/ent was dropped.
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that found nothing.
var ErrNotFound = errors.New("not found")

// Product is a read-only catalog item, owned by the (out-of-scope)
// catalog-import collaborator.
type Product struct {
	ID          int64
	SKU         sql.NullString
	TitleRu     string
	TitleLat    sql.NullString
	Description sql.NullString
	StockQty    int
	Price       float64
	CategoryID  sql.NullInt64
}

// Category is a node in the (read-only) product category tree.
type Category struct {
	ID         int64
	ParentID   sql.NullInt64
	TitleRu    string
	OrderIndex int
}

// ProductRepository reads products and categories.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository builds a repository over an open connection pool.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = "id, sku, title_ru, title_lat, description, stock_qty, price, category_id"

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.SKU, &p.TitleRu, &p.TitleLat, &p.Description, &p.StockQty, &p.Price, &p.CategoryID); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns a single product by id.
func (r *ProductRepository) Get(ctx context.Context, id int64) (*Product, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM products WHERE id = $1", productColumns), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListByIDs returns products matching the given ids, in no particular order.
func (r *ProductRepository) ListByIDs(ctx context.Context, ids []int64) ([]*Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM products WHERE id = ANY($1::bigint[])", productColumns), int64Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]*Product, error) {
	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetCategory returns a single category by id.
func (r *ProductRepository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, parent_id, title_ru, order_index FROM categories WHERE id = $1", id)
	var c Category
	if err := row.Scan(&c.ID, &c.ParentID, &c.TitleRu, &c.OrderIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCategories returns every category.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, parent_id, title_ru, order_index FROM categories")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.TitleRu, &c.OrderIndex); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ProductsInCategory returns up to limit products of one category, ordered
// by id.
func (r *ProductRepository) ProductsInCategory(ctx context.Context, categoryID int64, limit int) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM products WHERE category_id = $1 ORDER BY id LIMIT $2", productColumns),
		categoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// int64Array renders a Go []int64 as a Postgres array literal parameter,
// since database/sql has no native slice binding for integer arrays without
// pulling in pgtype; pgx's stdlib driver accepts the {a,b,c} literal form.
func int64Array(ids []int64) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out + "}"
}
