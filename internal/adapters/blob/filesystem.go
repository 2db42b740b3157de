package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/ports"
)

const fileScheme = "file://"

// FilesystemGateway stores one file per object in a single directory.
type FilesystemGateway struct {
	dir string
}

// NewFilesystemGateway creates the directory if needed and returns a gateway over it
func NewFilesystemGateway(dir string) (*FilesystemGateway, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir blob dir: %w", err)
	}
	return &FilesystemGateway{dir: abs}, nil
}

// List implements ports.BlobGateway. Newest means latest modification time,
// ties broken by pathname.
func (g *FilesystemGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("read blob dir: %w", err)
	}

	objects := make([]ports.BlobObject, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") || !strings.HasPrefix(name, opts.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, g.describe(name, info))
	}

	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].UploadedAt.Equal(objects[j].UploadedAt) {
			return objects[i].UploadedAt.After(objects[j].UploadedAt)
		}
		return objects[i].Pathname > objects[j].Pathname
	})

	if opts.Limit > 0 && len(objects) > opts.Limit {
		objects = objects[:opts.Limit]
	}
	return objects, nil
}

// Fetch implements ports.BlobGateway.
func (g *FilesystemGateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := g.resolve(url)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("fetch %s: %w", url, entities.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return body, nil
}

// Put implements ports.BlobGateway. The file appears atomically.
func (g *FilesystemGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pathname == "" || filepath.Base(pathname) != pathname {
		return nil, fmt.Errorf("invalid pathname %q", pathname)
	}

	path := filepath.Join(g.dir, pathname)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("blob %s already exists", pathname)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename temp file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	obj := g.describe(pathname, info)
	if opts.ContentType != "" {
		obj.ContentType = opts.ContentType
	}
	return &obj, nil
}

// Delete implements ports.BlobGateway. Deleting a missing object is not an error.
func (g *FilesystemGateway) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := g.resolve(url)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (g *FilesystemGateway) Ping(ctx context.Context) error {
	if _, err := os.Stat(g.dir); err != nil {
		return fmt.Errorf("blob dir unavailable: %w", err)
	}
	return ctx.Err()
}

func (g *FilesystemGateway) describe(name string, info os.FileInfo) ports.BlobObject {
	return ports.BlobObject{
		URL:         fileScheme + filepath.Join(g.dir, name),
		Pathname:    name,
		ContentType: "application/json",
		Size:        info.Size(),
		UploadedAt:  info.ModTime(),
	}
}

// resolve maps a reference back to a path inside the gateway directory.
func (g *FilesystemGateway) resolve(url string) (string, error) {
	path, err := trimScheme(url, fileScheme)
	if err != nil {
		return "", err
	}
	path = filepath.Clean(path)
	if filepath.Dir(path) != g.dir {
		return "", fmt.Errorf("blob reference %q is outside %s", url, g.dir)
	}
	return path, nil
}
