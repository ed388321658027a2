package pg

import (
	"context"
	"database/sql"
	"errors"

	"opticonnect.org/internal/authz"
)

type grantStore Store

const grantColumns = `id, user_id, region, resource_type, resource_id, granted_by, granted_at, expires_at, revoked_at, revoked_by`

func (s *grantStore) CreateGrant(ctx context.Context, grant authz.TemporaryAccessGrant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into access_grants (id, user_id, region, resource_type, resource_id, granted_by, granted_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, grant.ID, grant.UserID, grant.Region, nullable(grant.ResourceType), nullable(grant.ResourceID),
		grant.GrantedBy, grant.GrantedAt, grant.ExpiresAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return authz.ErrConflict
	}
	return err
}

func (s *grantStore) GetGrant(ctx context.Context, grantID string) (authz.TemporaryAccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from access_grants
		where id = $1
	`, grantID)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.TemporaryAccessGrant{}, authz.ErrNotFound
	}
	return grant, err
}

func (s *grantStore) SaveGrant(ctx context.Context, grant authz.TemporaryAccessGrant) error {
	res, err := s.db.ExecContext(ctx, `
		update access_grants
		set revoked_at = $2,
		    revoked_by = $3
		where id = $1
	`, grant.ID, grant.RevokedAt, nullable(grant.RevokedBy))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *grantStore) GrantsForUser(ctx context.Context, userID string) ([]authz.TemporaryAccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+grantColumns+`
		from access_grants
		where user_id = $1
		order by granted_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []authz.TemporaryAccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanGrant(row rowScanner) (authz.TemporaryAccessGrant, error) {
	var (
		g            authz.TemporaryAccessGrant
		resourceType sql.NullString
		resourceID   sql.NullString
		revokedBy    sql.NullString
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Region, &resourceType, &resourceID,
		&g.GrantedBy, &g.GrantedAt, &g.ExpiresAt, &g.RevokedAt, &revokedBy); err != nil {
		return authz.TemporaryAccessGrant{}, err
	}
	g.ResourceType = resourceType.String
	g.ResourceID = resourceID.String
	g.RevokedBy = revokedBy.String
	return g, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
