package models

import "database/sql"

// OrgProductStats is the per-(org, product) purchase rollup written by the
// ERP ingest collaborator and read by C7. The query methods live in
// pkg/history, which owns the C6/C7 algorithms; this struct is the shared
// row shape.
type OrgProductStats struct {
	ID          int64
	OrgID       int64
	ProductID   int64
	OrdersCount int
	QtySum      int
	LastOrderAt sql.NullTime
	LastQty     sql.NullInt64
	LastUnit    sql.NullString
}
