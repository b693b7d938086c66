package domain

import (
	"context"
	"io"
	"time"
)

// ArtifactStore uploads run artifacts to object storage.
type ArtifactStore interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies aged cycle history to cold storage. Rows are not removed
// from the primary store; pruning is a separate, explicit step.
type Archiver interface {
	ArchiveCycles(ctx context.Context, before time.Time) (int64, error)
}
