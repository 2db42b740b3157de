package ports

import (
	"context"

	"github.com/taskmaster/scheduler/internal/domain/entities"
)

// DatasetService exposes read-whole / replace-whole semantics over a BlobGateway.
type DatasetService interface {
	// EnsureConfigured reports a configuration error before any I/O happens.
	EnsureConfigured() error
	// Get returns the current dataset; an empty store yields empty collections.
	Get(ctx context.Context) (*entities.Dataset, error)
	// Replace stores ds as the new current dataset and returns its reference.
	Replace(ctx context.Context, ds entities.Dataset) (string, error)
}

// DatasetPersister is what the Schedule Store talks to: the remote end of
// GET and POST /api/blob.
type DatasetPersister interface {
	Load(ctx context.Context) (*entities.Dataset, error)
	Save(ctx context.Context, ds entities.Dataset) error
}
