package models

// SearchAlias is a global or org-scoped token rewrite rule (C5). The query
// methods that read and invalidate this table live in pkg/synonym, which
// owns the C5 algorithm; this struct is the shared row shape.
type SearchAlias struct {
	ID      int64
	OrgID   *int64 // nil means global
	Src     string
	Dst     string
	Kind    string
	Enabled bool
}
