package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves old rows from the database to cold storage and reports how
// many rows were moved.
type Archiver interface {
	ArchiveCandidates(ctx context.Context, before time.Time) (int64, error)
	ArchivePlans(ctx context.Context, before time.Time) (int64, error)
}
