package models

import (
	"context"
	"database/sql"
	"time"
)

// SearchLog is an immutable audit row recording one pipeline invocation's
// inputs and outcome.
type SearchLog struct {
	ID           int64
	UserID       sql.NullInt64
	RawText      string
	ParsedJSON   string
	SelectedJSON string
	Confidence   sql.NullFloat64
	CreatedAt    time.Time
}

// SearchLogRepository inserts audit rows. Insert runs inside tx when one is
// given and directly on the pool otherwise; the dialog handler passes no
// transaction and makes no autolearn write alongside it.
type SearchLogRepository struct {
	db *sql.DB
}

// NewSearchLogRepository builds a repository over an open connection pool.
func NewSearchLogRepository(db *sql.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

// Insert writes one immutable audit row.
func (r *SearchLogRepository) Insert(ctx context.Context, tx *sql.Tx, userID *int64, rawText, parsedJSON, selectedJSON string, confidence *float64) error {
	exec := sqlExecer(r.db)
	if tx != nil {
		exec = tx
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO search_log (user_id, raw_text, parsed_json, selected_json, confidence, created_at)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, now())`,
		nullableInt64(userID), rawText, parsedJSON, selectedJSON, nullableFloat64(confidence))
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqlExecer(db *sql.DB) execer { return db }

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
