package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/ports"
)

const memoryScheme = "memory://"

type memoryObject struct {
	meta ports.BlobObject
	body []byte
	seq  uint64
}

// MemoryGateway keeps objects in process memory. Used for development and tests.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
	seq     uint64
	now     func() time.Time
}

// NewMemoryGateway creates an empty in-memory gateway
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		objects: make(map[string]*memoryObject),
		now:     time.Now,
	}
}

// List implements ports.BlobGateway.
func (g *MemoryGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	matches := make([]*memoryObject, 0, len(g.objects))
	for name, obj := range g.objects {
		if strings.HasPrefix(name, opts.Prefix) {
			matches = append(matches, obj)
		}
	}
	g.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq > matches[j].seq })

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	out := make([]ports.BlobObject, len(matches))
	for i, obj := range matches {
		out[i] = obj.meta
	}
	return out, nil
}

// Fetch implements ports.BlobGateway.
func (g *MemoryGateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := trimScheme(url, memoryScheme)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[name]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, entities.ErrBlobNotFound)
	}
	return append([]byte(nil), obj.body...), nil
}

// Put implements ports.BlobGateway.
func (g *MemoryGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pathname == "" {
		return nil, fmt.Errorf("pathname is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.objects[pathname]; exists {
		return nil, fmt.Errorf("blob %s already exists", pathname)
	}

	g.seq++
	meta := ports.BlobObject{
		URL:         memoryScheme + pathname,
		Pathname:    pathname,
		ContentType: opts.ContentType,
		Size:        int64(len(body)),
		UploadedAt:  g.now(),
	}
	g.objects[pathname] = &memoryObject{
		meta: meta,
		body: append([]byte(nil), body...),
		seq:  g.seq,
	}
	return &meta, nil
}

// Delete implements ports.BlobGateway. Deleting a missing object is not an error.
func (g *MemoryGateway) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := trimScheme(url, memoryScheme)
	if err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.objects, name)
	g.mu.Unlock()
	return nil
}

// Ping implements ports.HealthChecker.
func (g *MemoryGateway) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored objects.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

func trimScheme(url, scheme string) (string, error) {
	if !strings.HasPrefix(url, scheme) {
		return "", fmt.Errorf("unsupported blob reference %q", url)
	}
	return strings.TrimPrefix(url, scheme), nil
}
