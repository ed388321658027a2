package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"opticonnect.org/internal/authz"
)

func TestCreateGroupDuplicateName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`insert into groups`)).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Groups().CreateGroup(context.Background(), authz.Group{ID: "g1", Name: "north-field"})
	if !errors.Is(err, authz.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestGroupsForUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "name", "permissions", "assigned_regions", "members", "managers",
		"is_active", "created_at", "updated_at",
	}).AddRow("g1", "north-field", []byte(`["gis.sector.use"]`), []byte(`["Delhi"]`),
		[]byte(`["u1","u2"]`), []byte(`["m1"]`), true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`members @> to_jsonb(array[$1::text])`)).
		WithArgs("u1").
		WillReturnRows(rows)

	groups, err := store.Groups().GroupsForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GroupsForUser: %v", err)
	}
	if len(groups) != 1 || !groups[0].HasMember("u2") || groups[0].Permissions[0] != "gis.sector.use" {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestDeleteGroupDetachesProfiles(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from groups where id = $1`)).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`update user_profiles`)).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.Groups().DeleteGroup(context.Background(), "g1"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
}

func TestDeleteGroupNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from groups where id = $1`)).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.Groups().DeleteGroup(context.Background(), "ghost"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetGrantAndRevoke(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "region", "resource_type", "resource_id",
		"granted_by", "granted_at", "expires_at", "revoked_at", "revoked_by",
	}).AddRow("gr1", "u1", "Delhi", nil, nil, "admin", now, now.Add(time.Hour), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`from access_grants`)).
		WithArgs("gr1").
		WillReturnRows(rows)

	grant, err := store.Grants().GetGrant(context.Background(), "gr1")
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	if grant.RevokedAt != nil || !grant.Active(now) {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	grant.RevokedAt = &now
	grant.RevokedBy = "admin"
	mock.ExpectExec(regexp.QuoteMeta(`update access_grants`)).
		WithArgs("gr1", grant.RevokedAt, "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Grants().SaveGrant(context.Background(), grant); err != nil {
		t.Fatalf("SaveGrant: %v", err)
	}
}
