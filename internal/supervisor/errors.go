package supervisor

import "errors"

var (
	ErrChildNotFound       = errors.New("supervisor: child not found")
	ErrDuplicateChild      = errors.New("supervisor: duplicate child id")
	ErrMaxRestartsExceeded = errors.New("supervisor: max restarts exceeded")
)
