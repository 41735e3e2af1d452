package job

import "errors"

var (
	ErrBusy          = errors.New("another download is in progress")
	ErrJobNotFound   = errors.New("job not found")
	ErrNoDocument    = errors.New("job has no document")
	ErrCorruptStatus = errors.New("corrupt job status")
)
