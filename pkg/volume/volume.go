// Package volume models snapshot stores as graphs of transferable diffs.
//
// A store holds point-in-time volumes (snapshots) identified by stable IDs
// that are shared across stores: the same snapshot carries the same ID on
// the filesystem it was taken on and in every bucket it was replicated to.
// Between volumes sit diffs, each one a concrete byte stream that produces
// volume To given volume From. A diff from the empty ID is self-contained
// and needs no predecessor.
//
// Replication then becomes a graph question: a volume is transferable to a
// destination if some path of diffs leads to it from what the destination
// already has. Stores expose their graphs through a uniform read surface,
// and diffs move between stores as streams: the source Sends a diff, the
// destination Receives it.
package volume

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/dustin/go-humanize"
)

// ============================================================================
// Core Types
// ============================================================================

// ID identifies a volume across stores. IDs are opaque to this package;
// filesystem stores derive them from snapshot UUIDs. The zero ID marks
// the absence of a volume, as in a diff with no predecessor.
type ID string

// NoVolume is the empty ID, the From of a self-contained diff.
const NoVolume ID = ""

// Volume is one point-in-time snapshot as a store presents it.
type Volume struct {
	// ID is the store-independent identity of the snapshot.
	ID ID

	// Path locates the volume inside its store: a subvolume path on a
	// filesystem, an object key prefix in a bucket.
	Path string
}

// String renders the volume for logs.
func (v Volume) String() string {
	if v.Path != "" {
		return fmt.Sprintf("%s (%s)", v.ID, v.Path)
	}
	return string(v.ID)
}

// Diff is one transferable edge of a store's graph: the byte stream that
// produces To when applied on top of From. From may be NoVolume for a
// stream that carries the whole volume.
type Diff struct {
	// From is the predecessor volume, NoVolume for a full stream.
	From ID

	// To is the volume the stream produces.
	To ID

	// Size is the stream size in bytes. Object stores report it exactly;
	// filesystem stores estimate it before the stream is generated.
	Size uint64

	// Estimated marks Size as a prediction rather than a measurement.
	Estimated bool

	// Source is the store that listed this diff and can Send it.
	Source Store
}

// String renders the diff for logs, marking estimated sizes with a tilde.
func (d Diff) String() string {
	from := string(d.From)
	if d.From == NoVolume {
		from = "scratch"
	}
	size := humanize.IBytes(d.Size)
	if d.Estimated {
		size = "~" + size
	}
	return fmt.Sprintf("%s from %s (%s)", d.To, from, size)
}

// ============================================================================
// Store Interface
// ============================================================================

// Store is a queryable collection of volumes and the diffs between them.
//
// The graph methods answer from the last completed Refresh without
// touching the backend, so they are cheap and never fail on I/O. Refresh
// replaces the whole graph atomically: readers observe either the old
// listing or the new one, and a failed Refresh leaves the old listing in
// place.
//
// Implementations: the btrfs store reads snapshots from a mounted
// filesystem and can Send; the S3 store reads uploaded diffs from a
// bucket and can Send and Receive.
type Store interface {
	// Refresh re-lists the backend and rebuilds the graph.
	Refresh(ctx context.Context) error

	// Volumes returns every known volume in listing order.
	Volumes() []Volume

	// Volume returns the volume with the given ID, or ErrNotFound.
	Volume(id ID) (Volume, error)

	// Edges yields the diffs that start at from, in listing order. The
	// same (From, To) pair may appear more than once when the backend
	// holds multiple streams for it; each occurrence is yielded.
	Edges(from ID) iter.Seq[Diff]

	// Diffs yields every diff in the graph in listing order.
	Diffs() iter.Seq[Diff]

	// HasEdge reports whether at least one diff produces to from from.
	HasEdge(to, from ID) bool

	// Send opens the byte stream for a diff previously listed by this
	// store. The caller owns the stream and must close it.
	Send(ctx context.Context, diff Diff) (io.ReadCloser, error)

	// Receive transfers a diff into this store by pulling the stream
	// from diff.Source. Receiving a diff from the store itself is a
	// no-op. Stores that cannot ingest streams return ErrNotSupported.
	Receive(ctx context.Context, diff Diff) error
}
