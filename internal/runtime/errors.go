package runtime

import "errors"

var (
	ErrRuntime          = errors.New("runtime error")
	ErrImageResolution  = errors.New("base image could not be resolved")
	ErrEmptyIndex       = errors.New("empty image index")
	ErrEmptyArchive     = errors.New("archive contains no images")
	ErrMultipleImages   = errors.New("archive contains more than one image")
	ErrContainerMissing = errors.New("container not found")
)
