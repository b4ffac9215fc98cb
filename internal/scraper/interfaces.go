package scraper

import (
	"context"
	"time"
)

// BatchStore persists committed batches. Batches are append-only: created
// exactly once per successful run, never mutated or deleted.
type BatchStore interface {
	InsertBatch(ctx context.Context, batch Batch) error
	ListBatches(ctx context.Context) ([]Batch, error)
	GetLatest(ctx context.Context) (Batch, error)
	GetByID(ctx context.Context, batchID string) (Batch, error)
	GetPatterns(ctx context.Context, batchID string) ([]ArchitectureRecord, error)
	Ping(ctx context.Context) error
}

// RenderSession is one browser session, reused sequentially across all
// sources within a run. Close must be called on every exit path.
type RenderSession interface {
	Render(ctx context.Context, url string) (string, error)
	Close()
}

// Renderer opens render sessions.
type Renderer interface {
	NewSession(ctx context.Context) (RenderSession, error)
}

// Extractor turns rendered HTML into architecture records. Implementations
// return an empty slice (not an error) when the page yields nothing.
type Extractor interface {
	Extract(ctx context.Context, html string, source Source) ([]ArchitectureRecord, error)
}

// Publisher pushes batch completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
