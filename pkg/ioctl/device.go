package ioctl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Devices
// ============================================================================

// Device is an open file descriptor that calls are invoked on. Filesystem
// ioctls are addressed at files or directories inside the filesystem, so
// a "device" here is any path the protocol targets, not only /dev nodes.
type Device struct {
	path string
	fd   int
}

// Open opens a path read-only for ioctl use.
//
// Parameters:
//   - path: File to open
//
// Returns:
//   - *Device: Open device
//   - error: Wrapped errno on failure
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// OpenDir opens a directory read-only for ioctl use, failing on
// non-directories. Filesystem tree operations address directories, and
// asking the kernel for O_DIRECTORY up front turns a mistaken file path
// into ENOTDIR at open time instead of a confusing ioctl error later.
func OpenDir(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Fd returns the underlying file descriptor.
func (d *Device) Fd() int { return d.fd }

// Path returns the path the device was opened from.
func (d *Device) Path() string { return d.path }

// Close releases the descriptor. Closing an already closed device is a
// no-op.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	fd := d.fd
	d.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}
