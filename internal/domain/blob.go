package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter stores artifacts (output images, market archives) in object
// storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes a stored artifact.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobReader retrieves stored artifacts.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes stored artifacts.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver writes a terminal market's full state to cold storage before the
// sweeper tears it down.
type Archiver interface {
	ArchiveMarket(ctx context.Context, m Market, players []Player, events []Event) (string, error)
}
