package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/snapsink/snapsink/internal/logger"
)

// ============================================================================
// Reconciliation
// ============================================================================

// ReconcileOptions controls a reconciliation pass.
type ReconcileOptions struct {
	// MinAge is how old an upload must be before it is considered
	// abandoned. Uploads younger than this are skipped so that a
	// reconciliation pass never races a transfer that is still running
	// (default: 0, reconcile everything)
	MinAge time.Duration

	// DryRun mode logs what would be aborted without actually aborting
	// (default: false)
	DryRun bool
}

// ReconcileStats contains statistics from a reconciliation run.
type ReconcileStats struct {
	StartTime    time.Time // When reconciliation started
	EndTime      time.Time // When reconciliation ended
	JournalCount uint64    // Number of abandoned uploads found in the journal
	RemoteCount  uint64    // Number of in-progress uploads listed in the bucket
	AbortedCount uint64    // Number of uploads successfully aborted
	FailedCount  uint64    // Number of uploads that failed to abort
}

// Duration returns the total reconciliation duration.
func (s *ReconcileStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the reconciliation.
func (s *ReconcileStats) Summary() string {
	return fmt.Sprintf("journal=%d remote=%d aborted=%d failed=%d duration=%s",
		s.JournalCount, s.RemoteCount, s.AbortedCount, s.FailedCount, s.Duration())
}

// Reconcile aborts multi-part uploads left behind by crashed or killed
// transfers. Abandoned uploads are invisible in object listings but S3
// bills their parts until they are explicitly aborted.
//
// The pass runs in two phases:
//
//  1. Journal: every upload recorded by this host's journal that never
//     reached a terminal state is aborted and its journal entry cleared.
//  2. Sweep: ListMultipartUploads over the store prefix catches uploads
//     the journal does not know about (journal disabled, journal lost,
//     or a transfer started from another host).
//
// Aborting is idempotent, so an upload found by both phases is only
// acted on once and a stale journal entry pointing at an already-aborted
// upload clears itself on the next pass.
//
// Parameters:
//   - ctx: Context for cancellation
//   - opts: Reconciliation options
//
// Returns:
//   - *ReconcileStats: Reconciliation statistics
//   - error: nil on success, or the first listing error encountered
func (s *Store) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileStats, error) {
	stats := &ReconcileStats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	cutoff := time.Now().Add(-opts.MinAge)

	// Upload IDs already handled by the journal phase, so the sweep
	// phase does not abort (or count) them twice.
	handled := make(map[string]bool)

	if s.journal != nil {
		logger.Info("Reconcile: Phase 1 - Checking journal for abandoned uploads...")

		entries, err := s.journal.Abandoned(opts.MinAge)
		if err != nil {
			return stats, fmt.Errorf("failed to read journal: %w", err)
		}

		logger.Info("Reconcile: Found %d abandoned journal entries", len(entries))

		for _, e := range entries {
			if e.Bucket != s.bucket {
				logger.Debug("Reconcile: Skipping journal entry for other bucket %q (upload %s)",
					e.Bucket, e.UploadID)
				continue
			}

			stats.JournalCount++
			handled[e.UploadID] = true

			if opts.DryRun {
				logger.Info("Reconcile: DRY RUN - Would abort upload %s for %s", e.UploadID, e.Key)
				stats.AbortedCount++
				continue
			}

			if err := s.abortUpload(ctx, e.Key, e.UploadID); err != nil {
				// Keep the journal entry so the next pass retries.
				logger.Warn("Reconcile: Failed to abort upload %s for %s: %v", e.UploadID, e.Key, err)
				stats.FailedCount++
				continue
			}

			if err := s.journal.End(e.UploadID); err != nil {
				logger.Warn("Reconcile: Failed to clear journal entry %s: %v", e.UploadID, err)
			}

			stats.AbortedCount++
		}
	}

	logger.Info("Reconcile: Phase 2 - Listing in-progress uploads in %s...", s)

	// The SDK has no paginator for ListMultipartUploads, so page by hand.
	var keyMarker, uploadIDMarker *string
	for {
		out, err := s.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         aws.String(s.bucket),
			Prefix:         aws.String(s.prefix),
			KeyMarker:      keyMarker,
			UploadIdMarker: uploadIDMarker,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to list multipart uploads: %w", err)
		}

		for _, u := range out.Uploads {
			uploadID := aws.ToString(u.UploadId)
			key := aws.ToString(u.Key)

			stats.RemoteCount++

			if handled[uploadID] {
				continue
			}

			if u.Initiated != nil && u.Initiated.After(cutoff) {
				logger.Debug("Reconcile: Skipping recent upload %s for %s", uploadID, key)
				continue
			}

			if opts.DryRun {
				logger.Info("Reconcile: DRY RUN - Would abort upload %s for %s", uploadID, key)
				stats.AbortedCount++
				continue
			}

			if err := s.abortUpload(ctx, key, uploadID); err != nil {
				logger.Warn("Reconcile: Failed to abort upload %s for %s: %v", uploadID, key, err)
				stats.FailedCount++
				continue
			}

			stats.AbortedCount++
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		keyMarker = out.NextKeyMarker
		uploadIDMarker = out.NextUploadIdMarker
	}

	logger.Info("Reconcile: Completed - aborted %d uploads, %d failed, duration=%s",
		stats.AbortedCount, stats.FailedCount, stats.Duration())

	return stats, nil
}
