package build

import "errors"

var (
	ErrBuild               = errors.New("build failed")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrCopy                = errors.New("copy failed")
	ErrCommandFailed       = errors.New("command failed")
	ErrDependencyInstall   = errors.New("dependency installation failed")
	ErrDependencyDrift     = errors.New("installed dependencies differ from the lock")
)
