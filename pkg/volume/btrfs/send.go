package btrfs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/binstruct"
	"github.com/snapsink/snapsink/pkg/ioctl"
	"github.com/snapsink/snapsink/pkg/volume"
)

// ============================================================================
// Send
// ============================================================================

// Send streams a diff out of the kernel. A full diff sends the whole
// snapshot; an incremental diff sends the delta against the parent
// snapshot, which must be listed by this store.
//
// The kernel writes the stream into a pipe while the caller reads the
// other end. The send ioctl itself cannot be cancelled; closing the
// returned stream tears it down by breaking the pipe.
//
// Parameters:
//   - ctx: Checked on entry; an in-flight send stops via Close
//   - diff: Diff to stream, as listed by this store
//
// Returns:
//   - io.ReadCloser: Send stream; the caller must drain or close it
//   - error: volume.ErrNotFound when the diff names unknown snapshots
func (s *Store) Send(ctx context.Context, diff volume.Diff) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	to, ok := s.info[diff.To]
	var parentRoot uint64
	if ok && diff.From != volume.NoVolume {
		parent, parentOK := s.info[diff.From]
		if !parentOK {
			s.mu.RUnlock()
			return nil, fmt.Errorf("parent volume %s: %w", diff.From, volume.ErrNotFound)
		}
		parentRoot = parent.treeID
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("volume %s: %w", diff.To, volume.ErrNotFound)
	}

	dev, err := ioctl.OpenDir(to.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", to.path, err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to create send pipe: %w", err)
	}

	logger.Info("Sending %s from %s", diff, s)

	errc := make(chan error, 1)
	go func() {
		_, err := iocSend.Do(dev, binstruct.Values{
			"send_fd":     uint64(pw.Fd()),
			"parent_root": parentRoot,
		})
		// Closing the write end delivers EOF to the reader; the error,
		// if any, is waiting for it behind the EOF.
		_ = pw.Close()
		_ = dev.Close()
		errc <- err
	}()

	return &sendStream{pr: pr, errc: errc}, nil
}

// sendStream adapts the pipe fed by the send ioctl into a ReadCloser.
// The ioctl outcome surfaces at end of stream, so a send that died
// mid-way cannot pass for a complete diff.
type sendStream struct {
	pr   *os.File
	errc chan error
	err  error
	done bool
}

func (st *sendStream) Read(p []byte) (int, error) {
	n, err := st.pr.Read(p)
	if err == io.EOF {
		if serr := st.wait(); serr != nil {
			return n, fmt.Errorf("send failed: %w", serr)
		}
	}
	return n, err
}

// Close releases the read end. Closing before EOF stops an in-flight
// send: the kernel's next pipe write fails and the ioctl returns.
func (st *sendStream) Close() error {
	return st.pr.Close()
}

// wait collects the ioctl result once the writer side is finished.
func (st *sendStream) wait() error {
	if !st.done {
		st.err = <-st.errc
		st.done = true
	}
	return st.err
}
