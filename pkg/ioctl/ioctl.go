// Package ioctl composes ioctl operation codes and invokes them with
// structured arguments.
//
// Linux encodes each ioctl operation in a 32-bit code holding the transfer
// direction, a driver type byte, a command number, and the argument
// structure size. This package builds those codes the way the kernel's
// macros do, binds each code to a binstruct layout describing its argument
// block, and exchanges that block with the kernel:
//
//	treeSearch := ioctl.IOWR(0x94, 17, searchArgs)
//	resp, err := treeSearch.Do(dev, binstruct.Values{"tree_id": 1})
//
// The argument structure crosses the boundary both ways: values encode
// into a buffer, the kernel mutates it in place, and the mutated buffer
// decodes into the returned record.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/snapsink/snapsink/pkg/binstruct"
)

// ============================================================================
// Operation Code Composition
// ============================================================================

// Direction describes which way the argument structure travels. Write
// means userspace hands data to the kernel, Read means the kernel fills
// the structure, ReadWrite both.
type Direction uint32

const (
	None      Direction = 0
	Write     Direction = 1
	Read      Direction = 2
	ReadWrite Direction = Read | Write
)

// Operation code bit layout, low to high: command number, type byte,
// argument size, direction.
const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14
	dirBits  = 2

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	nrMask   = 1<<nrBits - 1
	typeMask = 1<<typeBits - 1
	sizeMask = 1<<sizeBits - 1
	dirMask  = 1<<dirBits - 1
)

// OpCode composes a 32-bit ioctl operation code from its four bit-fields.
// Each argument is masked to its field width, so in-range inputs compose
// reversibly and every field can be recovered by shifting and masking.
func OpCode(dir Direction, typ, nr, size uint32) uint32 {
	return (uint32(dir)&dirMask)<<dirShift |
		(size&sizeMask)<<sizeShift |
		(typ&typeMask)<<typeShift |
		(nr&nrMask)<<nrShift
}

// ============================================================================
// Calls
// ============================================================================

// Call binds an operation code to the layout of its argument structure.
// Calls are immutable and safe to share; define them once per device
// protocol alongside the structure layouts.
type Call struct {
	code uint32
	args *binstruct.Descriptor
}

// IO declares an operation that carries no argument structure.
func IO(typ, nr uint32) *Call {
	return &Call{code: OpCode(None, typ, nr, 0)}
}

// IOR declares an operation whose argument structure the kernel fills.
func IOR(typ, nr uint32, args *binstruct.Descriptor) *Call {
	return &Call{code: OpCode(Read, typ, nr, uint32(args.Size())), args: args}
}

// IOW declares an operation that passes its argument structure to the
// kernel.
func IOW(typ, nr uint32, args *binstruct.Descriptor) *Call {
	return &Call{code: OpCode(Write, typ, nr, uint32(args.Size())), args: args}
}

// IOWR declares an operation whose argument structure travels both ways.
func IOWR(typ, nr uint32, args *binstruct.Descriptor) *Call {
	return &Call{code: OpCode(ReadWrite, typ, nr, uint32(args.Size())), args: args}
}

// Code returns the composed operation code.
func (c *Call) Code() uint32 { return c.code }

// Do invokes the operation on a device.
//
// Parameters:
//   - dev: Open device to invoke on
//   - values: Argument field values (nil = all zero)
//
// Returns:
//   - binstruct.Record: Argument structure as the kernel left it
//   - error: Encoding error, or *CallError wrapping the kernel errno
//
// The argument block is encoded, handed to the kernel by pointer, and
// decoded again after the syscall returns, so fields the kernel wrote are
// visible in the returned record. Operations declared with IO pass a nil
// argument pointer and return an empty record.
func (c *Call) Do(dev *Device, values binstruct.Values) (binstruct.Record, error) {
	if c.args == nil {
		if err := ioctl(dev.fd, c.code, nil); err != nil {
			return nil, err
		}
		return binstruct.Record{}, nil
	}

	buf, err := c.args.Encode(values)
	if err != nil {
		return nil, err
	}
	if err := ioctl(dev.fd, c.code, buf); err != nil {
		return nil, err
	}
	return c.args.Decode(buf, 0)
}

// ioctl performs the raw syscall. The kernel mutates buf in place. The
// pointer conversion stays inside the Syscall argument list so the buffer
// is pinned for the duration of the call.
func ioctl(fd int, code uint32, buf []byte) error {
	var errno unix.Errno
	if len(buf) > 0 {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(code), uintptr(unsafe.Pointer(&buf[0])))
	} else {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(code), 0)
	}
	if errno != 0 {
		return &CallError{Code: code, Errno: errno}
	}
	return nil
}
