// Package s3 implements an S3-backed snapshot store.
//
// This file contains the transfer transaction: the chunked multi-part
// upload that commits a received diff all-or-nothing.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/journal"
)

// abortTimeout bounds the cleanup call after a failed transfer. Cleanup
// runs on a fresh context because the transfer's own context is often
// already cancelled by the time cleanup is needed.
const abortTimeout = 30 * time.Second

// transferState tracks the transaction lifecycle. A transfer is active
// from creation until exactly one terminal transition, commit or abort.
type transferState int

const (
	transferActive transferState = iota
	transferCommitted
	transferAborted
)

// transfer is one in-flight multi-part upload transaction. It is confined
// to the goroutine running receiveStream.
type transfer struct {
	store    *Store
	key      string
	uploadID string
	state    transferState
	parts    []types.CompletedPart
	partNum  int32
	sent     uint64
}

// receiveStream uploads a stream to key as one transaction. Chunks are
// cut at the store's chunk size; the context is checked between chunks so
// cancellation takes effect at the next boundary. Any failure aborts the
// upload before the error is returned.
func (s *Store) receiveStream(ctx context.Context, key string, stream io.Reader) error {
	t, err := s.beginTransfer(ctx, key)
	if err != nil {
		return &TransferError{Key: key, Err: err}
	}
	defer t.abort() // no-op once committed

	chunk := make([]byte, s.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return &TransferError{Key: key, Err: err}
		}

		n, rerr := io.ReadFull(stream, chunk)
		if n > 0 {
			if err := t.upload(ctx, chunk[:n]); err != nil {
				return &TransferError{Key: key, Err: err}
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return &TransferError{Key: key, Err: fmt.Errorf("failed to read source stream: %w", rerr)}
		}
	}

	// The remote refuses to commit an upload with no parts, so an empty
	// stream still cuts one empty part.
	if t.partNum == 0 {
		if err := t.upload(ctx, chunk[:0]); err != nil {
			return &TransferError{Key: key, Err: err}
		}
	}

	if err := t.commit(ctx); err != nil {
		return &TransferError{Key: key, Err: err}
	}
	return nil
}

// beginTransfer creates the multi-part upload and journals it. The
// journal entry lands before any data moves; if journaling fails the
// fresh upload is aborted again so nothing dangles.
func (s *Store) beginTransfer(ctx context.Context, key string) (*transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: map[string]string{versionMetadataKey: senderVersion},
	}
	if s.encrypt {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	result, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart upload: %w", err)
	}

	t := &transfer{
		store:    s,
		key:      key,
		uploadID: aws.ToString(result.UploadId),
	}

	if s.journal != nil {
		entry := journal.Entry{
			Bucket:    s.bucket,
			Key:       key,
			UploadID:  t.uploadID,
			StartedAt: time.Now(),
		}
		if err := s.journal.Begin(entry); err != nil {
			t.abort()
			return nil, fmt.Errorf("failed to journal upload %s: %w", t.uploadID, err)
		}
	}

	logger.Debug("Started upload %s for %s", t.uploadID, key)
	return t, nil
}

// upload sends one chunk as the next part. Part numbers increase
// strictly, starting at 1.
func (t *transfer) upload(ctx context.Context, data []byte) error {
	if t.state != transferActive {
		return fmt.Errorf("upload %s is no longer active", t.uploadID)
	}

	t.partNum++
	logger.Info("Uploading chunk #%d for %s (%s)", t.partNum, t.key, humanize.IBytes(uint64(len(data))))

	result, err := t.store.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(t.store.bucket),
		Key:        aws.String(t.key),
		UploadId:   aws.String(t.uploadID),
		PartNumber: aws.Int32(t.partNum),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %w", t.partNum, err)
	}

	t.parts = append(t.parts, types.CompletedPart{
		ETag:       result.ETag,
		PartNumber: aws.Int32(t.partNum),
	})
	t.sent += uint64(len(data))
	return nil
}

// commit completes the upload, making the object visible atomically.
func (t *transfer) commit(ctx context.Context) error {
	if t.state != transferActive {
		return fmt.Errorf("upload %s is no longer active", t.uploadID)
	}

	_, err := t.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(t.store.bucket),
		Key:      aws.String(t.key),
		UploadId: aws.String(t.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: t.parts,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	t.state = transferCommitted
	t.journalEnd()
	logger.Info("Uploaded %s (%s in %d parts)", t.key, humanize.IBytes(t.sent), len(t.parts))
	return nil
}

// abort cancels the upload, discarding every part the remote holds for
// it. Safe to defer: once the transfer reached a terminal state, abort
// does nothing.
func (t *transfer) abort() {
	if t.state != transferActive {
		return
	}
	t.state = transferAborted

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()

	if err := t.store.abortUpload(ctx, t.key, t.uploadID); err != nil {
		// Keep the journal entry: reconciliation retries the abort later.
		logger.Error("Failed to abort upload %s for %s: %v", t.uploadID, t.key, err)
		return
	}
	t.journalEnd()
	logger.Info("Aborted upload %s for %s", t.uploadID, t.key)
}

// journalEnd strikes the upload out of the journal after a terminal
// transition.
func (t *transfer) journalEnd() {
	if t.store.journal == nil {
		return
	}
	if err := t.store.journal.End(t.uploadID); err != nil {
		logger.Error("Failed to clear journal entry for upload %s: %v", t.uploadID, err)
	}
}

// abortUpload cancels a multi-part upload. Aborting an upload the remote
// no longer knows is not an error, so retries and sweeps stay idempotent.
func (s *Store) abortUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		// Ignore NoSuchUpload error (idempotent behavior)
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			return fmt.Errorf("failed to abort multipart upload: %w", err)
		}
	}
	return nil
}
