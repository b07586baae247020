package launchfile

import "errors"

var (
	ErrInvalid  = errors.New("invalid launch file")
	ErrNotFound = errors.New("launch file not found")
)
