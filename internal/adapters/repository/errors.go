package repository

import "errors"

// Sentinel kinds for roster errors.
var (
	ErrNotFound    = errors.New("competitor not found")
	ErrInvalidName = errors.New("invalid competitor name")
	ErrDuplicate   = errors.New("duplicate competitor")
)
