package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CycleStore persists completed pipeline cycles.
type CycleStore interface {
	Save(ctx context.Context, rec CycleRecord) error
	GetByID(ctx context.Context, id string) (CycleRecord, error)
	ListRecent(ctx context.Context, limit int) ([]CycleRecord, error)
	List(ctx context.Context, opts ListOpts) ([]CycleRecord, error)
	Stats(ctx context.Context) (CycleStats, error)
}
