package client

import (
	"errors"

	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/launch"
	"github.com/cruciblehq/cradle/internal/protocol"
	"github.com/cruciblehq/cradle/internal/runtime"
)

var (
	ErrUnavailable = errors.New("daemon is not running")
	ErrRequest     = errors.New("request failed")
	ErrInvalid     = errors.New("daemon rejected the request")
)

// Sentinel each error kind matches, so remote failures can be tested with
// errors.Is just like local ones.
var kindErrors = map[protocol.ErrorKind]error{
	protocol.KindImageResolution:    runtime.ErrImageResolution,
	protocol.KindDependencyInstall:  build.ErrDependencyInstall,
	protocol.KindEntryPointNotFound: launch.ErrEntryPointNotFound,
	protocol.KindInvalid:            ErrInvalid,
}

// A failure reported by the daemon.
type RemoteError struct {
	Kind    protocol.ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Matches the sentinel of the error's kind, and [ErrRequest] for any kind.
func (e *RemoteError) Is(target error) bool {
	if target == ErrRequest {
		return true
	}
	sentinel, ok := kindErrors[e.Kind]
	return ok && target == sentinel
}
