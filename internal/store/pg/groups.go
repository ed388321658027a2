package pg

import (
	"context"
	"database/sql"
	"errors"

	"opticonnect.org/internal/authz"
)

type groupStore Store

const groupColumns = `id, name, permissions, assigned_regions, members, managers, is_active, created_at, updated_at`

func (s *groupStore) CreateGroup(ctx context.Context, group authz.Group) error {
	perms, err := encodeJSONSlice(group.Permissions)
	if err != nil {
		return err
	}
	regions, err := encodeJSONSlice(group.AssignedRegions)
	if err != nil {
		return err
	}
	members, err := encodeJSONSlice(group.Members)
	if err != nil {
		return err
	}
	managers, err := encodeJSONSlice(group.Managers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into groups (id, name, permissions, assigned_regions, members, managers, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, group.ID, group.Name, perms, regions, members, managers, group.IsActive, group.CreatedAt, group.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return authz.ErrConflict
	}
	return err
}

func (s *groupStore) GetGroup(ctx context.Context, groupID string) (authz.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+groupColumns+`
		from groups
		where id = $1
	`, groupID)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Group{}, authz.ErrNotFound
	}
	return group, err
}

func (s *groupStore) SaveGroup(ctx context.Context, group authz.Group) error {
	perms, err := encodeJSONSlice(group.Permissions)
	if err != nil {
		return err
	}
	regions, err := encodeJSONSlice(group.AssignedRegions)
	if err != nil {
		return err
	}
	members, err := encodeJSONSlice(group.Members)
	if err != nil {
		return err
	}
	managers, err := encodeJSONSlice(group.Managers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update groups
		set name = $2,
		    permissions = $3,
		    assigned_regions = $4,
		    members = $5,
		    managers = $6,
		    is_active = $7,
		    updated_at = $8
		where id = $1
	`, group.ID, group.Name, perms, regions, members, managers, group.IsActive, group.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.ErrConflict
		}
		return err
	}
	return requireRow(res)
}

func (s *groupStore) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from groups where id = $1`, groupID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	// Detach the group from every profile in the same transaction.
	if _, err := tx.ExecContext(ctx, `
		update user_profiles
		set group_ids = coalesce((
			select jsonb_agg(elem)
			from jsonb_array_elements_text(group_ids) elem
			where elem <> $1
		), '[]'::jsonb),
		    updated_at = now()
		where group_ids @> to_jsonb(array[$1::text])
	`, groupID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *groupStore) ListGroups(ctx context.Context) ([]authz.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+groupColumns+`
		from groups
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

func (s *groupStore) GroupsForUser(ctx context.Context, userID string) ([]authz.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+groupColumns+`
		from groups
		where members @> to_jsonb(array[$1::text])
		order by name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (authz.Group, error) {
	var (
		g           authz.Group
		rawPerms    []byte
		rawRegions  []byte
		rawMembers  []byte
		rawManagers []byte
	)
	if err := row.Scan(&g.ID, &g.Name, &rawPerms, &rawRegions, &rawMembers, &rawManagers, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return authz.Group{}, err
	}
	if err := decodeJSON(rawPerms, &g.Permissions); err != nil {
		return authz.Group{}, err
	}
	if err := decodeJSON(rawRegions, &g.AssignedRegions); err != nil {
		return authz.Group{}, err
	}
	if err := decodeJSON(rawMembers, &g.Members); err != nil {
		return authz.Group{}, err
	}
	if err := decodeJSON(rawManagers, &g.Managers); err != nil {
		return authz.Group{}, err
	}
	return g, nil
}

func collectGroups(rows *sql.Rows) ([]authz.Group, error) {
	var result []authz.Group
	for rows.Next() {
		g, err := scanGroup(rows)
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
