package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"opticonnect.org/internal/authz"
)

type requestStore Store

const requestColumns = `id, user_id, region, request_type, reason, status, created_at, reviewed_by, reviewed_at, review_notes`

func (s *requestStore) CreateRequest(ctx context.Context, req authz.RegionRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into region_requests (id, user_id, region, request_type, reason, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.UserID, req.Region, req.RequestType, req.Reason, req.Status, req.CreatedAt)
	// A partial unique index on (user_id, region) where status='pending'
	// enforces the one-pending-request rule.
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return authz.ErrDuplicatePending
	}
	return err
}

func (s *requestStore) GetRequest(ctx context.Context, requestID string) (authz.RegionRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+requestColumns+`
		from region_requests
		where id = $1
	`, requestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.RegionRequest{}, authz.ErrNotFound
	}
	return req, err
}

func (s *requestStore) ApproveRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (authz.RegionRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.RegionRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return authz.RegionRequest{}, err
	}
	if req.Status != authz.RequestPending {
		return authz.RegionRequest{}, authz.ErrInvalidState
	}

	req.Status = authz.RequestApproved
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	if _, err := tx.ExecContext(ctx, `
		update region_requests
		set status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5
		where id = $1
	`, req.ID, req.Status, req.ReviewedBy, req.ReviewedAt, req.ReviewNotes); err != nil {
		return authz.RegionRequest{}, err
	}

	// Region assignment commits with the status transition; there is
	// no window where the request is approved but access not granted.
	// A requester without a profile row rolls the whole review back.
	res, err := tx.ExecContext(ctx, `
		update user_profiles
		set assigned_regions = case
			when assigned_regions @> to_jsonb(array[$2::text]) then assigned_regions
			else assigned_regions || to_jsonb(array[$2::text])
		end,
		    updated_at = now()
		where user_id = $1
	`, req.UserID, req.Region)
	if err != nil {
		return authz.RegionRequest{}, err
	}
	if err := requireRow(res); err != nil {
		return authz.RegionRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		return authz.RegionRequest{}, err
	}
	return req, nil
}

func (s *requestStore) RejectRequest(ctx context.Context, requestID, reviewerID, notes string, at time.Time) (authz.RegionRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.RegionRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return authz.RegionRequest{}, err
	}
	if req.Status != authz.RequestPending {
		return authz.RegionRequest{}, authz.ErrInvalidState
	}

	req.Status = authz.RequestRejected
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	req.ReviewNotes = notes
	if _, err := tx.ExecContext(ctx, `
		update region_requests
		set status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5
		where id = $1
	`, req.ID, req.Status, req.ReviewedBy, req.ReviewedAt, req.ReviewNotes); err != nil {
		return authz.RegionRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		return authz.RegionRequest{}, err
	}
	return req, nil
}

func (s *requestStore) ListRequests(ctx context.Context, status authz.RequestStatus) ([]authz.RegionRequest, error) {
	query := `select ` + requestColumns + ` from region_requests order by created_at desc`
	args := []any{}
	if status != "" {
		query = `select ` + requestColumns + ` from region_requests where status = $1 order by created_at desc`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *requestStore) RequestsForUser(ctx context.Context, userID string) ([]authz.RegionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+requestColumns+`
		from region_requests
		where user_id = $1
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func lockRequest(ctx context.Context, tx *sql.Tx, requestID string) (authz.RegionRequest, error) {
	row := tx.QueryRowContext(ctx, `
		select `+requestColumns+`
		from region_requests
		where id = $1
		for update
	`, requestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.RegionRequest{}, authz.ErrNotFound
	}
	return req, err
}

func scanRequest(row rowScanner) (authz.RegionRequest, error) {
	var (
		req        authz.RegionRequest
		reviewedBy sql.NullString
		notes      sql.NullString
	)
	if err := row.Scan(&req.ID, &req.UserID, &req.Region, &req.RequestType, &req.Reason,
		&req.Status, &req.CreatedAt, &reviewedBy, &req.ReviewedAt, &notes); err != nil {
		return authz.RegionRequest{}, err
	}
	req.ReviewedBy = reviewedBy.String
	req.ReviewNotes = notes.String
	return req, nil
}

func collectRequests(rows *sql.Rows) ([]authz.RegionRequest, error) {
	var result []authz.RegionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
