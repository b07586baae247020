package launch

import (
	"errors"
	"fmt"
)

var (
	ErrLaunch             = errors.New("launch failed")
	ErrEntryPointNotFound = errors.New("entry point not found in image")
)

// Reports a foreground process that exited with a non-zero status.
//
// The CLI exits with Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.Code)
}
