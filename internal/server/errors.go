package server

import "errors"

var (
	ErrServer         = errors.New("server error")
	ErrUnknownCommand = errors.New("unknown command")
)
