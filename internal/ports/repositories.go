package ports

import (
	"context"
	"time"
)

// BlobObject describes one stored object.
type BlobObject struct {
	URL         string    `json:"url"`
	Pathname    string    `json:"pathname"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ListOptions filters a gateway listing.
type ListOptions struct {
	Prefix string
	// Limit caps the number of objects returned; 0 means no limit.
	Limit int
}

// PutOptions describes how an object is written.
type PutOptions struct {
	ContentType string
	Access      string
}

// BlobGateway is an object store addressed by key for writes and by reference
// (URL) for reads and deletes. It has no "overwrite a fixed key" operation.
type BlobGateway interface {
	// List returns the objects whose pathname starts with opts.Prefix,
	// most recently created first.
	List(ctx context.Context, opts ListOptions) ([]BlobObject, error)
	// Fetch returns the body of the object behind url.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Put writes a new object under pathname.
	Put(ctx context.Context, pathname string, body []byte, opts PutOptions) (*BlobObject, error)
	// Delete removes the object behind url.
	Delete(ctx context.Context, url string) error
}

// HealthChecker is implemented by gateways that can report reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by gateways holding connections.
type Closer interface {
	Close() error
}
