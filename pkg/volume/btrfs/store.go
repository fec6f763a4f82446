// Package btrfs reads snapshots straight from a mounted btrfs
// filesystem.
//
// The store scans the filesystem's root tree for read-only subvolumes
// and lists them as volumes keyed by subvolume UUID. Every snapshot can
// stream as a full diff; snapshots whose parent is also listed can
// stream incrementally against it. Diffs come out of the kernel send
// ioctl, so this store only produces: receiving is not supported.
package btrfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/binstruct"
	"github.com/snapsink/snapsink/pkg/ioctl"
	"github.com/snapsink/snapsink/pkg/volume"
)

// ============================================================================
// Store
// ============================================================================

// Store is a snapshot store backed by a btrfs mount. It implements
// volume.Store; the graph methods answer from the last Refresh.
type Store struct {
	*volume.Graph

	mount string

	mu   sync.RWMutex
	info map[volume.ID]*subvol
}

// New builds a store for the filesystem mounted at mount. The path must
// exist and be a directory; whether it really is btrfs surfaces on the
// first Refresh, when the kernel rejects the search ioctl.
//
// Parameters:
//   - mount: Mount point of the filesystem
//
// Returns:
//   - *Store: Store with an empty graph
//   - error: nil, or why the mount path is unusable
func New(mount string) (*Store, error) {
	fi, err := os.Stat(mount)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", mount, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", mount)
	}

	return &Store{
		Graph: volume.NewGraph(),
		mount: mount,
		info:  make(map[volume.ID]*subvol),
	}, nil
}

// String renders the store for logs.
func (s *Store) String() string {
	return "btrfs://" + s.mount
}

// ============================================================================
// Refresh
// ============================================================================

// Refresh scans the root tree and rebuilds the graph from the read-only
// subvolumes found. The graph swaps in only after the whole scan
// succeeds; on error the previous graph stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Debug("Scanning subvolumes under %s", s.mount)

	dev, err := ioctl.OpenDir(s.mount)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.mount, err)
	}
	defer func() { _ = dev.Close() }()

	scan := newRootScan()
	if err := scanRootTree(ctx, dev, scan); err != nil {
		return fmt.Errorf("failed to scan root tree of %s: %w", s.mount, err)
	}

	s.resolvePaths(dev, scan)

	// Only read-only subvolumes with an identity and a place in the
	// directory tree can be sent, so only those become volumes.
	var kept []*subvol
	for _, sv := range scan.ordered() {
		switch {
		case sv.uuid == uuid.Nil:
			logger.Debug("Skipping tree %d: no uuid", sv.treeID)
		case !sv.readOnly():
			logger.Debug("Skipping %s: not read-only", sv.uuid)
		case sv.path == "":
			logger.Debug("Skipping %s: unreachable from %s", sv.uuid, s.mount)
		default:
			kept = append(kept, sv)
		}
	}

	vols, diffs, info := s.assemble(kept)

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.Rebuild(vols, diffs)

	logger.Info("Found %d snapshots and %d diffs on %s", len(vols), len(diffs), s.mount)
	return nil
}

// assemble turns the kept subvolumes into the graph inputs. Every
// snapshot gets a full diff from scratch; snapshots whose parent is also
// kept get an incremental diff from it. Sizes are the subvolume's
// bytes_used, an estimate either way.
func (s *Store) assemble(kept []*subvol) ([]volume.Volume, []volume.Diff, map[volume.ID]*subvol) {
	info := make(map[volume.ID]*subvol, len(kept))
	vols := make([]volume.Volume, 0, len(kept))
	var diffs []volume.Diff

	for _, sv := range kept {
		info[sv.id()] = sv
		vols = append(vols, volume.Volume{ID: sv.id(), Path: sv.path})
	}

	for _, sv := range kept {
		diffs = append(diffs, volume.Diff{
			From:      volume.NoVolume,
			To:        sv.id(),
			Size:      sv.bytesUsed,
			Estimated: true,
			Source:    s,
		})

		if sv.parentUUID == uuid.Nil {
			continue
		}
		parent := volume.ID(sv.parentUUID.String())
		if _, ok := info[parent]; !ok {
			continue
		}
		diffs = append(diffs, volume.Diff{
			From:      parent,
			To:        sv.id(),
			Size:      sv.bytesUsed,
			Estimated: true,
			Source:    s,
		})
	}

	return vols, diffs, info
}

// resolvePaths fills the absolute path of every subvolume that has a
// backref, following nested subvolumes up to the top level tree.
func (s *Store) resolvePaths(dev *ioctl.Device, scan *rootScan) {
	memo := make(map[uint64]string)
	for _, sv := range scan.ordered() {
		path, err := s.pathOf(dev, scan, sv.treeID, memo, make(map[uint64]bool))
		if err != nil {
			logger.Debug("No path for tree %d: %v", sv.treeID, err)
			continue
		}
		sv.path = path
	}
}

// pathOf resolves the absolute path of a subvolume tree: the parent
// subvolume's path, then the directory holding the subvolume, then its
// name. The directory comes from the INO_LOOKUP ioctl on the parent
// tree.
func (s *Store) pathOf(dev *ioctl.Device, scan *rootScan, treeID uint64, memo map[uint64]string, visiting map[uint64]bool) (string, error) {
	if treeID == fsTreeObjectid {
		return s.mount, nil
	}
	if path, ok := memo[treeID]; ok {
		return path, nil
	}
	if visiting[treeID] {
		return "", fmt.Errorf("backref cycle at tree %d", treeID)
	}
	visiting[treeID] = true

	sv, ok := scan.subvols[treeID]
	if !ok || sv.name == "" {
		return "", fmt.Errorf("tree %d has no backref", treeID)
	}

	parent, err := s.pathOf(dev, scan, sv.parentTree, memo, visiting)
	if err != nil {
		return "", err
	}

	rec, err := iocInoLookup.Do(dev, binstruct.Values{
		"treeid":   sv.parentTree,
		"objectid": sv.dirID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %d in tree %d: %w", sv.dirID, sv.parentTree, err)
	}

	// The lookup yields the directory path inside the parent subvolume,
	// empty for the subvolume root, with a trailing slash otherwise.
	path := filepath.Join(parent, rec.String("name")+sv.name)
	memo[treeID] = path
	return path, nil
}

// ============================================================================
// Receive
// ============================================================================

// Receive is not supported: snapshots stream out of this store, never
// into it.
func (s *Store) Receive(context.Context, volume.Diff) error {
	return fmt.Errorf("btrfs store cannot receive diffs: %w", volume.ErrNotSupported)
}
