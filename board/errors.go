package board

import "errors"

var (
	// ErrPermissionDenied is returned before any state change when the
	// viewer's role forbids a mutation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidTarget is returned when a reorder names a column, card or
	// index that is not present locally.
	ErrInvalidTarget = errors.New("invalid target")
)
