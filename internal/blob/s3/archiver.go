package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/safearb/internal/domain"
)

const (
	// multipartThreshold is the serialized size at which the upload switches
	// to the multipart path. A month of 30-second cycles lands near it.
	multipartThreshold = 32 << 20
	archivePartSize    = 8 << 20
)

// CycleArchiveStore provides read access to completed cycles for archival
// purposes. The archiver only requires this one query, not the full
// domain.CycleStore; the Postgres store satisfies it through its ListBefore
// method.
type CycleArchiveStore interface {
	// ListBefore returns all cycles completed strictly before the given
	// cutoff time, oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.CycleRecord, error)
}

// ArchiveImpl implements domain.Archiver by querying the cycle store for
// records older than a cutoff, serializing them to JSONL, and uploading the
// result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here -- that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer domain.ArtifactStore
	cycles CycleArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.ArtifactStore, cycles CycleArchiveStore, logger *slog.Logger) *ArchiveImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveImpl{
		writer: writer,
		cycles: cycles,
		logger: logger.With("component", "archiver"),
	}
}

// ArchiveCycles queries all cycles completed before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/cycles/YYYY-MM.jsonl.
// The count of archived records is returned; zero rows is not an error.
func (a *ArchiveImpl) ArchiveCycles(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.cycles.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles marshal: %w", err)
	}

	path := archivePath("cycles", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles upload: %w", err)
	}

	count := int64(len(recs))
	a.logger.Info("cycle history archived",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339),
	)
	return count, nil
}

// upload picks the single-request or multipart path by serialized size.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), archivePartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/cycles/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
