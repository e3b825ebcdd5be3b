package errors

import (
	"context"
	stderrs "errors"
	"syscall"
)

// IsTransientFS reports filesystem conditions where a partition write may succeed on retry
// Permission and not-exist errors are permanent; busy and interrupted calls are not
func IsTransientFS(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	var errno syscall.Errno
	if !stderrs.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EAGAIN, syscall.EBUSY, syscall.EINTR, syscall.ETIMEDOUT:
		return true
	default:
		return false
	}
}
