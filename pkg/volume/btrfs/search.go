package btrfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/binstruct"
	"github.com/snapsink/snapsink/pkg/ioctl"
	"github.com/snapsink/snapsink/pkg/volume"
)

// ============================================================================
// Root Tree Scan
// ============================================================================

// subvol aggregates what the root tree records about one subvolume. The
// identity fields come from its ROOT_ITEM row, the location fields from
// its ROOT_BACKREF row.
type subvol struct {
	treeID     uint64
	uuid       uuid.UUID
	parentUUID uuid.UUID
	flags      uint64
	bytesUsed  uint64

	// Backref: the subvolume is named name inside directory dirID of
	// the subvolume with tree id parentTree.
	parentTree uint64
	dirID      uint64
	name       string

	// Absolute path, filled in once the backref chain is resolved.
	path string
}

// readOnly reports whether the subvolume can serve as a send source.
func (sv *subvol) readOnly() bool {
	return sv.flags&rootSubvolRdonly != 0
}

// id is the volume identity: the subvolume UUID in canonical text form.
func (sv *subvol) id() volume.ID {
	return volume.ID(sv.uuid.String())
}

// rootScan folds root tree rows into per-subvolume records. The
// ROOT_ITEM and ROOT_BACKREF rows of one subvolume arrive as separate
// results, in either order across pages.
type rootScan struct {
	subvols map[uint64]*subvol
}

func newRootScan() *rootScan {
	return &rootScan{subvols: make(map[uint64]*subvol)}
}

func (rs *rootScan) get(treeID uint64) *subvol {
	sv, ok := rs.subvols[treeID]
	if !ok {
		sv = &subvol{treeID: treeID}
		rs.subvols[treeID] = sv
	}
	return sv
}

// ordered returns the scanned subvolumes sorted by tree id, so listings
// come out in creation order regardless of map iteration.
func (rs *rootScan) ordered() []*subvol {
	out := make([]*subvol, 0, len(rs.subvols))
	for _, sv := range rs.subvols {
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].treeID < out[j].treeID })
	return out
}

// apply folds one search result row.
func (rs *rootScan) apply(hdr binstruct.Record, payload []byte) error {
	treeID := hdr.Uint("objectid")

	switch hdr.Uint("type") {
	case rootItemKey:
		if len(payload) < rootItem.Size() {
			// Kernels before 3.10 write a short root_item without the
			// UUID block, leaving nothing to key a volume by.
			logger.Debug("Skipping short root item for tree %d (%d bytes)", treeID, len(payload))
			return nil
		}
		rec, err := rootItem.Decode(payload, 0)
		if err != nil {
			return fmt.Errorf("failed to decode root item for tree %d: %w", treeID, err)
		}

		id, err := uuid.FromBytes(rec.Bytes("uuid"))
		if err != nil {
			return fmt.Errorf("failed to read uuid for tree %d: %w", treeID, err)
		}
		parent, err := uuid.FromBytes(rec.Bytes("parent_uuid"))
		if err != nil {
			return fmt.Errorf("failed to read parent uuid for tree %d: %w", treeID, err)
		}

		sv := rs.get(treeID)
		sv.uuid = id
		sv.parentUUID = parent
		sv.flags = rec.Uint("flags")
		sv.bytesUsed = rec.Uint("bytes_used")

	case rootBackrefKey:
		rec, err := rootRef.Decode(payload, 0)
		if err != nil {
			return fmt.Errorf("failed to decode root backref for tree %d: %w", treeID, err)
		}
		nameEnd := rootRef.Size() + int(rec.Uint("name_len"))
		if nameEnd > len(payload) {
			return fmt.Errorf("root backref for tree %d names %d bytes, payload has %d",
				treeID, rec.Uint("name_len"), len(payload))
		}

		sv := rs.get(treeID)
		sv.parentTree = hdr.Uint("offset")
		sv.dirID = rec.Uint("dirid")
		sv.name = string(payload[rootRef.Size():nameEnd])
	}

	return nil
}

// walkSearchBuf decodes count result rows from a TREE_SEARCH buffer.
// Each row is a search header followed by len payload bytes. The last
// header is returned so the caller can resume the search after it.
func walkSearchBuf(buf []byte, count int, fn func(hdr binstruct.Record, payload []byte) error) (binstruct.Record, error) {
	b := binstruct.NewBuffer(buf)
	var last binstruct.Record

	for i := 0; i < count; i++ {
		hdr, err := b.Next(searchHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to decode search header %d: %w", i, err)
		}
		size := int(hdr.Uint("len"))
		off := b.Offset()
		if err := b.Skip(size); err != nil {
			return nil, fmt.Errorf("search row %d payload overruns buffer: %w", i, err)
		}
		if err := fn(hdr, buf[off:off+size]); err != nil {
			return nil, err
		}
		last = hdr
	}
	return last, nil
}

// scanRootTree feeds every ROOT_ITEM and ROOT_BACKREF row of the root
// tree through the scan, paging TREE_SEARCH until the kernel runs dry.
func scanRootTree(ctx context.Context, dev *ioctl.Device, scan *rootScan) error {
	var (
		minObjectid = uint64(firstFreeObjectid)
		minType     = uint64(rootItemKey)
		minOffset   uint64
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := iocTreeSearch.Do(dev, binstruct.Values{
			"key": binstruct.Values{
				"tree_id":      rootTreeObjectid,
				"min_objectid": minObjectid,
				"max_objectid": lastFreeObjectid,
				"min_offset":   minOffset,
				"max_offset":   maxUint64,
				"min_transid":  0,
				"max_transid":  maxUint64,
				"min_type":     minType,
				"max_type":     rootBackrefKey,
				"nr_items":     searchBatch,
			},
		})
		if err != nil {
			return err
		}

		count := int(rec.Sub("key").Uint("nr_items"))
		if count == 0 {
			return nil
		}

		last, err := walkSearchBuf(rec.Bytes("buf"), count, scan.apply)
		if err != nil {
			return err
		}

		// Resume just past the last returned row.
		minObjectid = last.Uint("objectid")
		minType = last.Uint("type")
		minOffset = last.Uint("offset") + 1
		if minOffset == 0 {
			// Offset wrapped, step to the next key type.
			minType++
		}
	}
}
