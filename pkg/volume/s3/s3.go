// Package s3 implements an S3-backed snapshot store.
//
// Every diff lives in the bucket as one object named after the edge it
// represents: <prefix><to>/<from>, with the literal name "None" standing
// in for an absent predecessor. A volume exists in the store exactly when
// at least one diff produces it, so the whole graph reconstructs from a
// single bucket listing with no index object to maintain.
//
// Uploads are transactional. Each received diff moves through a
// multi-part upload that either commits completely or is aborted, so a
// listing never shows a half-written diff. An optional journal records
// uploads while they are in flight; a reconciliation pass aborts the ones
// a crashed process left behind.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/journal"
	"github.com/snapsink/snapsink/pkg/volume"
)

// senderVersion is stamped into the metadata of every uploaded object so
// future readers can tell which sender wrote it.
const senderVersion = "0.1.0"

// versionMetadataKey is the object metadata key carrying senderVersion.
const versionMetadataKey = "snapsink-version"

// noParentName is the key segment standing in for an absent predecessor.
const noParentName = "None"

const (
	// DefaultChunkSize is the transfer chunk (and upload part) size.
	DefaultChunkSize int64 = 100 << 20

	// MinChunkSize is the smallest part size the remote accepts for any
	// part except the last.
	MinChunkSize int64 = 5 << 20

	// MaxChunkSize is the largest part size the remote accepts.
	MaxChunkSize int64 = 5 << 30
)

// ============================================================================
// Client Surface
// ============================================================================

// API is the slice of the S3 client surface the store uses. *s3.Client
// satisfies it; tests substitute a fake.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

// ============================================================================
// Store
// ============================================================================

// Config holds the settings for an S3 store.
type Config struct {
	// Client is the S3 client to use. Required.
	Client API

	// Bucket is the bucket holding the diffs. Required.
	Bucket string

	// Prefix narrows the store to keys starting with it. A trailing
	// slash is the usual convention but is not enforced.
	Prefix string

	// ChunkSize is the transfer chunk and upload part size in bytes.
	// Zero selects DefaultChunkSize; non-zero values must lie between
	// MinChunkSize and MaxChunkSize.
	ChunkSize int64

	// Encrypt asks the remote to encrypt uploaded diffs at rest.
	Encrypt bool

	// Journal records in-flight uploads for crash recovery. Optional:
	// without it, Reconcile still sweeps the bucket listing.
	Journal *journal.Journal
}

// Store is a snapshot store backed by an S3 bucket. It implements
// volume.Store: diffs upload via Receive and download via Send, and the
// graph methods answer from the last Refresh.
type Store struct {
	*volume.Graph

	client     API
	bucket     string
	prefix     string
	chunkSize  int64
	encrypt    bool
	journal    *journal.Journal
	keyPattern *regexp.Regexp
}

// New builds an S3 store. The bucket is not contacted; the first Refresh
// validates connectivity.
//
// Parameters:
//   - cfg: Store settings
//
// Returns:
//   - *Store: Store with an empty graph
//   - error: Configuration error
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 store requires a client")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d outside [%d, %d]", chunkSize, MinChunkSize, MaxChunkSize)
	}

	return &Store{
		Graph:     volume.NewGraph(),
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		chunkSize: chunkSize,
		encrypt:   cfg.Encrypt,
		journal:   cfg.Journal,
		keyPattern: regexp.MustCompile(
			`^` + regexp.QuoteMeta(cfg.Prefix) + `(?P<to>[^/]*)/(?P<from>.*)$`,
		),
	}, nil
}

// String renders the store for logs.
func (s *Store) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

// ============================================================================
// Key Naming
// ============================================================================

// diffKey builds the object key for a diff.
func (s *Store) diffKey(d volume.Diff) string {
	from := noParentName
	if d.From != volume.NoVolume {
		from = string(d.From)
	}
	return s.prefix + string(d.To) + "/" + from
}

// parseKey inverts diffKey. Keys under the prefix that do not follow the
// <to>/<from> shape report ok=false.
func (s *Store) parseKey(key string) (to, from volume.ID, ok bool) {
	match := s.keyPattern.FindStringSubmatch(key)
	if match == nil || match[1] == "" || match[2] == "" {
		return "", "", false
	}
	to = volume.ID(match[1])
	if match[2] != noParentName {
		from = volume.ID(match[2])
	}
	return to, from, true
}

// ============================================================================
// Refresh
// ============================================================================

// Refresh lists the bucket under the prefix and rebuilds the graph from
// the object names. The graph swaps in only after the whole listing
// succeeds; on error the previous graph stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Debug("Listing %s", s)

	var vols []volume.Volume
	var diffs []volume.Diff
	seen := make(map[volume.ID]bool)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", s, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			to, from, ok := s.parseKey(key)
			if !ok {
				logger.Warn("Ignoring object with unexpected key %q in %s", key, s)
				continue
			}

			if !seen[to] {
				seen[to] = true
				vols = append(vols, volume.Volume{ID: to, Path: s.prefix + string(to)})
			}
			diffs = append(diffs, volume.Diff{
				From:   from,
				To:     to,
				Size:   uint64(aws.ToInt64(obj.Size)),
				Source: s,
			})
		}
	}

	s.Rebuild(vols, diffs)
	logger.Info("Found %d volumes and %d diffs in %s", len(vols), len(diffs), s)
	return nil
}

// ============================================================================
// Send and Receive
// ============================================================================

// Send opens the object stream for a diff in this store.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - diff: Diff to stream, as listed by this store
//
// Returns:
//   - io.ReadCloser: Object body; the caller must close it
//   - error: volume.ErrNotFound if no object holds the diff
func (s *Store) Send(ctx context.Context, diff volume.Diff) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.diffKey(diff)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("diff %s: %w", key, volume.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	logger.Debug("Downloading %s from %s", key, s)
	return result.Body, nil
}

// Receive transfers a diff into the bucket by pulling the stream from its
// source store.
//
// The upload is transactional: on any failure, including context
// cancellation between chunks, the multi-part upload is aborted and the
// returned error matches ErrTransfer. The bucket never lists a partial
// diff. Receiving a diff this store already holds is a no-op.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - diff: Diff to transfer, carrying its source store
//
// Returns:
//   - error: nil once the diff is fully committed
func (s *Store) Receive(ctx context.Context, diff volume.Diff) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if src, ok := diff.Source.(*Store); ok && src == s {
		logger.Info("Skipping %s: already in %s", diff, s)
		return nil
	}
	if diff.Source == nil {
		return fmt.Errorf("diff %s has no source store", diff)
	}

	key := s.diffKey(diff)
	logger.Info("Transferring %s to %s", diff, s)

	stream, err := diff.Source.Send(ctx, diff)
	if err != nil {
		return fmt.Errorf("failed to open source stream for %s: %w", diff, err)
	}
	defer func() { _ = stream.Close() }()

	return s.receiveStream(ctx, key, stream)
}
