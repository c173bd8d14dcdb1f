// Package learn implements the learning loop (C11): the two trigger points
// that feed confirmed matches back into the alias store so the same
// phrase resolves directly next time.
//
// Grounded directly on spec.md §4.11 (no original_source equivalent —
// this is dialog/pipeline glue around pkg/alias, not core retrieval logic).
package learn

import "context"

const rerankAutolearnThreshold = 0.85

// AliasStore is the subset of pkg/alias.Store the learning loop needs.
type AliasStore interface {
	Autolearn(ctx context.Context, orgID int64, aliasText string, productID int64) (bool, error)
	Upsert(ctx context.Context, orgID int64, aliasText string, productID int64) error
}

// Loop wires the two trigger points to an AliasStore.
type Loop struct {
	store AliasStore
}

// New builds a Loop over store.
func New(store AliasStore) *Loop {
	return &Loop{store: store}
}

// OnAutolearnEligible is called after a successful ADD_ITEM resolution.
// It autolearns baseQuery -> productID when the outcome had exactly one
// candidate, or the winning rerank score met the confidence threshold.
// Any other outcome shape is a no-op.
func (l *Loop) OnAutolearnEligible(ctx context.Context, orgID int64, baseQuery string, candidateCount int, rerankTopScore float64, productID int64) (bool, error) {
	if candidateCount != 1 && rerankTopScore < rerankAutolearnThreshold {
		return false, nil
	}
	return l.store.Autolearn(ctx, orgID, baseQuery, productID)
}

// OnUserConfirm is called when the user taps a candidate in the alias
// keyboard rendered after a multi-result answer. Unlike autolearn this is
// an unconditional upsert: the user explicitly chose this product for
// this phrase.
func (l *Loop) OnUserConfirm(ctx context.Context, orgID int64, baseQuery string, chosenProductID int64) error {
	return l.store.Upsert(ctx, orgID, baseQuery, chosenProductID)
}
