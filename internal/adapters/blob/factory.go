package blob

import (
	"context"
	"fmt"
	"net/http"

	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/database"
	"github.com/taskmaster/scheduler/internal/ports"
)

// New builds the gateway selected by cfg.Blob.Backend.
func New(ctx context.Context, cfg *config.Config) (ports.BlobGateway, error) {
	switch cfg.Blob.Backend {
	case config.BackendMemory:
		return NewMemoryGateway(), nil
	case config.BackendFilesystem:
		return NewFilesystemGateway(cfg.Blob.Dir)
	case config.BackendVercel:
		return NewVercelGateway(cfg.Blob.BaseURL, cfg.Blob.Token, &http.Client{Timeout: cfg.Server.RequestTimeout}), nil
	case config.BackendPostgres:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewPostgresGateway(db), nil
	case config.BackendRedis:
		return NewRedisGateway(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}
