package pipeline

import "errors"

var (
	ErrPipeline            = errors.New("pipeline failed")
	ErrPlan                = errors.New("invalid step plan")
	ErrMissingInput        = errors.New("missing input")
	ErrToolchain           = errors.New("toolchain check failed")
	ErrCommandFailed       = errors.New("command failed")
	ErrCopy                = errors.New("copy failed")
	ErrStamp               = errors.New("stamp failed")
	ErrPrivilegesDropped   = errors.New("privileges already dropped")
	ErrPrivilegesHeld      = errors.New("privileges not yet dropped")
	ErrFileSystemOperation = errors.New("file system operation failed")
)
