package ioctl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CallError reports a failed ioctl invocation. It keeps the composed
// operation code for diagnostics and wraps the kernel errno, so callers
// can match specific conditions:
//
//	if errors.Is(err, unix.EPERM) {
//	    // not privileged for this operation
//	}
type CallError struct {
	// Code is the operation code that was invoked.
	Code uint32

	// Errno is the error the kernel returned.
	Errno unix.Errno
}

// Error formats the code in hex the way strace prints it.
func (e *CallError) Error() string {
	return fmt.Sprintf("ioctl 0x%08x: %v", e.Code, e.Errno)
}

// Unwrap exposes the errno to errors.Is and errors.As.
func (e *CallError) Unwrap() error { return e.Errno }
