package btrfs

import (
	"github.com/snapsink/snapsink/pkg/binstruct"
	"github.com/snapsink/snapsink/pkg/ioctl"
)

// ============================================================================
// Kernel ABI
// ============================================================================

// Object ids, key types and flags from the btrfs on-disk format. The
// root tree indexes every subvolume; user subvolumes start at object id
// 256 and their items carry the types below.
const (
	btrfsIoctlMagic = 0x94

	rootTreeObjectid  = 1
	fsTreeObjectid    = 5
	firstFreeObjectid = 256

	rootItemKey    = 132
	rootBackrefKey = 144

	// root_item flags bit marking a read-only subvolume.
	rootSubvolRdonly = 1 << 0

	// TREE_SEARCH result rows travel in the tail of a page-sized
	// argument block, after the 104-byte search key.
	searchArgsSize = 4096
	searchBufSize  = searchArgsSize - 104

	inoLookupPathMax = 4080

	// Result rows requested per TREE_SEARCH call. The kernel stops
	// earlier when the buffer fills.
	searchBatch = 4096
)

const (
	lastFreeObjectid = ^uint64(255)
	maxUint64        = ^uint64(0)
)

// Argument and item layouts, byte for byte as the kernel declares them.
// Item structures (timespec through root_ref) are packed; the ioctl
// argument blocks have no implicit padding to begin with.
var (
	timespec = binstruct.MustNew(
		binstruct.U64("sec"),
		binstruct.U32("nsec"),
	)

	diskKey = binstruct.MustNew(
		binstruct.U64("objectid"),
		binstruct.U8("type"),
		binstruct.U64("offset"),
	)

	inodeItem = binstruct.MustNew(
		binstruct.U64("generation"),
		binstruct.U64("transid"),
		binstruct.U64("size"),
		binstruct.U64("nbytes"),
		binstruct.U64("block_group"),
		binstruct.U32("nlink"),
		binstruct.U32("uid"),
		binstruct.U32("gid"),
		binstruct.U32("mode"),
		binstruct.U64("rdev"),
		binstruct.U64("flags"),
		binstruct.U64("sequence"),
		binstruct.Pad(32),
		binstruct.Nested("atime", timespec),
		binstruct.Nested("ctime", timespec),
		binstruct.Nested("mtime", timespec),
		binstruct.Nested("otime", timespec),
	)

	rootItem = binstruct.MustNew(
		binstruct.Nested("inode", inodeItem),
		binstruct.U64("generation"),
		binstruct.U64("root_dirid"),
		binstruct.U64("bytenr"),
		binstruct.U64("byte_limit"),
		binstruct.U64("bytes_used"),
		binstruct.U64("last_snapshot"),
		binstruct.U64("flags"),
		binstruct.U32("refs"),
		binstruct.Nested("drop_progress", diskKey),
		binstruct.U8("drop_level"),
		binstruct.U8("level"),
		binstruct.U64("generation_v2"),
		binstruct.Bytes("uuid", 16),
		binstruct.Bytes("parent_uuid", 16),
		binstruct.Bytes("received_uuid", 16),
		binstruct.U64("ctransid"),
		binstruct.U64("otransid"),
		binstruct.U64("stransid"),
		binstruct.U64("rtransid"),
		binstruct.Nested("ctime", timespec),
		binstruct.Nested("otime", timespec),
		binstruct.Nested("stime", timespec),
		binstruct.Nested("rtime", timespec),
		binstruct.Pad(64),
	)

	// rootRef is followed by name_len bytes of subvolume name.
	rootRef = binstruct.MustNew(
		binstruct.U64("dirid"),
		binstruct.U64("sequence"),
		binstruct.U16("name_len"),
	)

	searchKey = binstruct.MustNew(
		binstruct.U64("tree_id"),
		binstruct.U64("min_objectid"),
		binstruct.U64("max_objectid"),
		binstruct.U64("min_offset"),
		binstruct.U64("max_offset"),
		binstruct.U64("min_transid"),
		binstruct.U64("max_transid"),
		binstruct.U32("min_type"),
		binstruct.U32("max_type"),
		binstruct.U32("nr_items"),
		binstruct.Pad(4),
		binstruct.Pad(32),
	)

	searchArgs = binstruct.MustNew(
		binstruct.Nested("key", searchKey),
		binstruct.Bytes("buf", searchBufSize),
	)

	// searchHeader precedes each result row in the search buffer.
	searchHeader = binstruct.MustNew(
		binstruct.U64("transid"),
		binstruct.U64("objectid"),
		binstruct.U64("offset"),
		binstruct.U32("type"),
		binstruct.U32("len"),
	)

	inoLookupArgs = binstruct.MustNew(
		binstruct.U64("treeid"),
		binstruct.U64("objectid"),
		binstruct.CString("name", inoLookupPathMax),
	)

	sendArgs = binstruct.MustNew(
		binstruct.U64("send_fd"),
		binstruct.U64("clone_sources_count"),
		binstruct.U64("clone_sources"),
		binstruct.U64("parent_root"),
		binstruct.U64("flags"),
		binstruct.Pad(32),
	)
)

// The three operations the store needs.
var (
	iocTreeSearch = ioctl.IOWR(btrfsIoctlMagic, 17, searchArgs)
	iocInoLookup  = ioctl.IOWR(btrfsIoctlMagic, 18, inoLookupArgs)
	iocSend       = ioctl.IOW(btrfsIoctlMagic, 38, sendArgs)
)
