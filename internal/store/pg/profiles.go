package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"opticonnect.org/internal/authz"
)

type profileStore Store

func (s *profileStore) GetProfile(ctx context.Context, userID string) (authz.Profile, error) {
	var (
		p         authz.Profile
		rawDirect []byte
		rawReg    []byte
		rawGroups []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, role, direct_permissions, assigned_regions, group_ids, updated_at
		from user_profiles
		where user_id = $1
	`, userID).Scan(&p.UserID, &p.Role, &rawDirect, &rawReg, &rawGroups, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Profile{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Profile{}, err
	}
	if err := decodeJSON(rawDirect, &p.DirectPermissions); err != nil {
		return authz.Profile{}, err
	}
	if err := decodeJSON(rawReg, &p.AssignedRegions); err != nil {
		return authz.Profile{}, err
	}
	if err := decodeJSON(rawGroups, &p.GroupIDs); err != nil {
		return authz.Profile{}, err
	}
	return p, nil
}

func (s *profileStore) SaveProfile(ctx context.Context, profile authz.Profile) error {
	direct, reg, groups, err := encodeProfileColumns(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into user_profiles (user_id, role, direct_permissions, assigned_regions, group_ids, updated_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (user_id) do update
		set role = excluded.role,
		    direct_permissions = excluded.direct_permissions,
		    assigned_regions = excluded.assigned_regions,
		    group_ids = excluded.group_ids,
		    updated_at = now()
	`, profile.UserID, profile.Role, direct, reg, groups)
	return err
}

func (s *profileStore) AddAssignedRegion(ctx context.Context, userID, region string) error {
	return addJSONElement(ctx, s.db, "assigned_regions", userID, region)
}

func (s *profileStore) AddGroupMembership(ctx context.Context, userID, groupID string) error {
	return addJSONElement(ctx, s.db, "group_ids", userID, groupID)
}

func (s *profileStore) RemoveGroupMembership(ctx context.Context, userID, groupID string) error {
	res, err := s.db.ExecContext(ctx, `
		update user_profiles
		set group_ids = coalesce((
			select jsonb_agg(elem)
			from jsonb_array_elements_text(group_ids) elem
			where elem <> $2
		), '[]'::jsonb),
		    updated_at = now()
		where user_id = $1
	`, userID, groupID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// addJSONElement appends a string to a jsonb array column unless it is
// already present. One statement, so the update is atomic.
func addJSONElement(ctx context.Context, db *sql.DB, column, userID, value string) error {
	query := fmt.Sprintf(`
		update user_profiles
		set %[1]s = case
			when %[1]s @> to_jsonb(array[$2::text]) then %[1]s
			else %[1]s || to_jsonb(array[$2::text])
		end,
		    updated_at = now()
		where user_id = $1
	`, column)
	res, err := db.ExecContext(ctx, query, userID, value)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func encodeProfileColumns(p authz.Profile) (direct, regions, groups []byte, err error) {
	if direct, err = encodeJSONSlice(p.DirectPermissions); err != nil {
		return nil, nil, nil, err
	}
	if regions, err = encodeJSONSlice(p.AssignedRegions); err != nil {
		return nil, nil, nil, err
	}
	if groups, err = encodeJSONSlice(p.GroupIDs); err != nil {
		return nil, nil, nil, err
	}
	return direct, regions, groups, nil
}

func encodeJSONSlice(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb column: %w", err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	return data, nil
}

func decodeJSON(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode jsonb column: %w", err)
	}
	return nil
}
