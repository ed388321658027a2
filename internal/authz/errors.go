package authz

import "errors"

var (
	ErrNotFound         = errors.New("authz: not found")
	ErrInvalidInput     = errors.New("authz: invalid input")
	ErrInvalidRange     = errors.New("authz: expiry must be in the future")
	ErrDuplicatePending = errors.New("authz: pending request already exists")
	ErrInvalidState     = errors.New("authz: request already reviewed")
	ErrConflict         = errors.New("authz: resource conflict")
)
