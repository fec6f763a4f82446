package volume

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// These errors are shared across store implementations so callers can
// branch on conditions without knowing the backend.
//
// Error Wrapping:
// Implementations wrap these with context:
//
//	return Volume{}, fmt.Errorf("volume %s: %w", id, volume.ErrNotFound)

var (
	// ErrNotFound indicates the requested volume is not in the graph.
	//
	// This error is returned when:
	//   - Volume() is called with an ID the last Refresh did not list
	//   - A transfer names a volume the source store does not hold
	ErrNotFound = errors.New("volume not found")

	// ErrNotSupported indicates the store cannot perform the operation.
	//
	// This error is returned when:
	//   - Receive() is called on a store without ingest support
	//
	// This is a permanent error: retrying will not help.
	ErrNotSupported = errors.New("operation not supported")
)
