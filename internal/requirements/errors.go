package requirements

import "errors"

var (
	ErrSyntax   = errors.New("invalid requirement")
	ErrConflict = errors.New("conflicting requirements")
)
