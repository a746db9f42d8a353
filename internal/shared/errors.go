package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantMissing indicates the request carries no tenant scope.
	ErrTenantMissing = errors.New("tenant scope missing")
)
