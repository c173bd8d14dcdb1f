package models

import "time"

// OrgAlias is a learned, per-tenant phrase-to-product mapping (C4/C11).
// The query methods that read and write this table live in pkg/alias,
// which owns the C4 algorithm; this struct is the shared row shape.
type OrgAlias struct {
	ID              int64
	OrgID           int64
	AliasText       string
	NormalizedAlias string
	ProductID       int64
	Weight          int
	LastUsedAt      time.Time
}
