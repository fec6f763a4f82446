package ioctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/snapsink/snapsink/pkg/binstruct"
)

// ============================================================================
// OpCode Tests
// ============================================================================

func TestOpCode(t *testing.T) {
	t.Run("MatchesKnownCodes", func(t *testing.T) {
		// Codes cross-checked against the kernel's own macro expansion.
		cases := []struct {
			dir      Direction
			typ      uint32
			nr       uint32
			size     uint32
			expected uint32
		}{
			{ReadWrite, 0x94, 17, 4096, 0xd0009411},
			{ReadWrite, 0x94, 18, 4096, 0xd0009412},
			{Write, 0x94, 38, 72, 0x40489426},
			{Write, 0x64, 0x45, 64, 0x40406445},
			{None, 0x12, 0, 0, 0x00001200},
		}
		for _, c := range cases {
			assert.Equal(t, c.expected, OpCode(c.dir, c.typ, c.nr, c.size))
		}
	})

	t.Run("RecoversEveryField", func(t *testing.T) {
		code := OpCode(ReadWrite, 0x94, 17, 4096)
		assert.Equal(t, uint32(ReadWrite), code>>dirShift&dirMask)
		assert.Equal(t, uint32(4096), code>>sizeShift&sizeMask)
		assert.Equal(t, uint32(0x94), code>>typeShift&typeMask)
		assert.Equal(t, uint32(17), code>>nrShift&nrMask)
	})

	t.Run("MasksOverWideInputs", func(t *testing.T) {
		// A size beyond 14 bits must not leak into the direction bits.
		code := OpCode(None, 0, 0, 1<<sizeBits)
		assert.Equal(t, uint32(0), code>>dirShift&dirMask)
		assert.Equal(t, uint32(0), code>>sizeShift&sizeMask)
	})

	t.Run("DistinguishesDirections", func(t *testing.T) {
		seen := map[uint32]bool{}
		for _, dir := range []Direction{None, Write, Read, ReadWrite} {
			code := OpCode(dir, 0x94, 17, 4096)
			assert.False(t, seen[code])
			seen[code] = true
		}
	})
}

// ============================================================================
// Call Builder Tests
// ============================================================================

func TestCallBuilders(t *testing.T) {
	args := binstruct.MustNew(
		binstruct.U64("id"),
		binstruct.U32("flags"),
		binstruct.Pad(4),
	)

	t.Run("EmbedsStructureSize", func(t *testing.T) {
		call := IOWR(0x94, 17, args)
		assert.Equal(t, uint32(args.Size()), call.Code()>>sizeShift&sizeMask)
	})

	t.Run("SetsDirectionPerBuilder", func(t *testing.T) {
		assert.Equal(t, uint32(None), IO(0x94, 1).Code()>>dirShift&dirMask)
		assert.Equal(t, uint32(Read), IOR(0x94, 1, args).Code()>>dirShift&dirMask)
		assert.Equal(t, uint32(Write), IOW(0x94, 1, args).Code()>>dirShift&dirMask)
		assert.Equal(t, uint32(ReadWrite), IOWR(0x94, 1, args).Code()>>dirShift&dirMask)
	})

	t.Run("NoArgumentCallHasZeroSize", func(t *testing.T) {
		call := IO(0x94, 1)
		assert.Equal(t, uint32(0), call.Code()>>sizeShift&sizeMask)
	})
}

// ============================================================================
// CallError Tests
// ============================================================================

func TestCallError(t *testing.T) {
	t.Run("FormatsCodeAsHex", func(t *testing.T) {
		err := &CallError{Code: 0xd0009411, Errno: unix.EPERM}
		assert.Contains(t, err.Error(), "0xd0009411")
	})

	t.Run("UnwrapsToErrno", func(t *testing.T) {
		var err error = &CallError{Code: 1, Errno: unix.ENOTTY}
		assert.ErrorIs(t, err, unix.ENOTTY)
		assert.NotErrorIs(t, err, unix.EPERM)
	})
}

// ============================================================================
// Device Tests
// ============================================================================

func TestDevice(t *testing.T) {
	t.Run("OpensAndClosesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		dev, err := Open(path)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, dev.Fd(), 0)
		assert.Equal(t, path, dev.Path())
		require.NoError(t, dev.Close())
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		dev, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, dev.Close())
		require.NoError(t, dev.Close())
	})

	t.Run("FailsOnMissingPath", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
		assert.ErrorIs(t, err, unix.ENOENT)
	})

	t.Run("OpensDirectory", func(t *testing.T) {
		dev, err := OpenDir(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, dev.Close())
	})

	t.Run("OpenDirRejectsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := OpenDir(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, unix.ENOTDIR)
	})
}

// ============================================================================
// Do Tests
// ============================================================================

func TestDo(t *testing.T) {
	// The null device implements no ioctl handlers, so any operation comes
	// back ENOTTY. That exercises the full encode/invoke/error path without
	// needing real hardware or a mounted filesystem.
	openNull := func(t *testing.T) *Device {
		t.Helper()
		dev, err := Open(os.DevNull)
		require.NoError(t, err)
		t.Cleanup(func() { _ = dev.Close() })
		return dev
	}

	t.Run("ReportsKernelErrno", func(t *testing.T) {
		args := binstruct.MustNew(binstruct.U32("v"))
		call := IOWR(0xF7, 1, args)

		_, err := call.Do(openNull(t), binstruct.Values{"v": 7})
		require.Error(t, err)
		assert.ErrorIs(t, err, unix.ENOTTY)

		var callErr *CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, call.Code(), callErr.Code)
	})

	t.Run("InvokesWithoutArguments", func(t *testing.T) {
		call := IO(0xF7, 2)
		_, err := call.Do(openNull(t), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, unix.ENOTTY)
	})

	t.Run("RejectsUnencodableValues", func(t *testing.T) {
		args := binstruct.MustNew(binstruct.U8("v"))
		call := IOW(0xF7, 3, args)

		_, err := call.Do(openNull(t), binstruct.Values{"v": 1 << 9})
		require.Error(t, err)
		assert.ErrorIs(t, err, binstruct.ErrEncode)
	})
}
