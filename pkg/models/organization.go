package models

import (
	"context"
	"database/sql"
	"errors"
)

// Organization is a tenant.
type Organization struct {
	ID         int64
	Name       string
	ExternalID sql.NullString
}

// OrgMember links a user to an organization with a role and status.
type OrgMember struct {
	ID     int64
	OrgID  int64
	UserID int64
	Role   string
	Status string
}

// OrgRepository resolves organization membership.
type OrgRepository struct {
	db *sql.DB
}

// NewOrgRepository builds a repository over an open connection pool.
func NewOrgRepository(db *sql.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// Get returns a single organization by id.
func (r *OrgRepository) Get(ctx context.Context, id int64) (*Organization, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id, name, external_id FROM organizations WHERE id = $1", id)
	var o Organization
	if err := row.Scan(&o.ID, &o.Name, &o.ExternalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// ResolveOrgForUser returns the lowest org_id among the user's active
// memberships, or ErrNotFound if the user belongs to no active org. This
// mirrors spec §3's OrgMember resolution rule used when a caller supplies a
// user id instead of an org id.
func (r *OrgRepository) ResolveOrgForUser(ctx context.Context, userID int64) (int64, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT org_id FROM org_members
		 WHERE user_id = $1 AND status = 'active'
		 ORDER BY org_id ASC LIMIT 1`, userID)
	var orgID int64
	if err := row.Scan(&orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return orgID, nil
}
