package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/database"
	"github.com/taskmaster/scheduler/internal/ports"
)

const postgresScheme = "postgres://blobs/"

// PostgresGateway stores objects as rows of the blobs table. Creation order is
// the BIGSERIAL id.
type PostgresGateway struct {
	db *database.DB
}

// NewPostgresGateway wraps an open database connection
func NewPostgresGateway(db *database.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

type blobRow struct {
	ID          int64     `db:"id"`
	Pathname    string    `db:"pathname"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	UploadedAt  time.Time `db:"uploaded_at"`
}

func (r blobRow) object() ports.BlobObject {
	return ports.BlobObject{
		URL:         postgresScheme + r.Pathname,
		Pathname:    r.Pathname,
		ContentType: r.ContentType,
		Size:        r.Size,
		UploadedAt:  r.UploadedAt,
	}
}

// List implements ports.BlobGateway.
func (g *PostgresGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	query := `
		SELECT id, pathname, content_type, size, uploaded_at
		FROM blobs
		WHERE pathname LIKE $1
		ORDER BY id DESC`
	args := []interface{}{likePrefix(opts.Prefix)}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
	}

	var rows []blobRow
	if err := sqlx.SelectContext(ctx, g.db.DB, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	out := make([]ports.BlobObject, len(rows))
	for i, r := range rows {
		out[i] = r.object()
	}
	return out, nil
}

// Fetch implements ports.BlobGateway.
func (g *PostgresGateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	pathname, err := trimScheme(url, postgresScheme)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = g.db.DB.GetContext(ctx, &body, `SELECT body FROM blobs WHERE pathname = $1`, pathname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch %s: %w", url, entities.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	return body, nil
}

// Put implements ports.BlobGateway.
func (g *PostgresGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	access := opts.Access
	if access == "" {
		access = "public"
	}

	query := `
		INSERT INTO blobs (pathname, content_type, access, body, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, pathname, content_type, size, uploaded_at`

	var row blobRow
	err := g.db.DB.QueryRowxContext(ctx, query, pathname, contentType, access, body, len(body)).StructScan(&row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("blob %s already exists", pathname)
		}
		return nil, fmt.Errorf("insert blob: %w", err)
	}

	obj := row.object()
	return &obj, nil
}

// Delete implements ports.BlobGateway.
func (g *PostgresGateway) Delete(ctx context.Context, url string) error {
	pathname, err := trimScheme(url, postgresScheme)
	if err != nil {
		return err
	}

	if _, err := g.db.DB.ExecContext(ctx, `DELETE FROM blobs WHERE pathname = $1`, pathname); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.db.Ping(ctx)
}

// Stats reports connection pool usage for the detailed health check.
func (g *PostgresGateway) Stats() map[string]interface{} {
	return g.db.PoolStats()
}

// Close implements ports.Closer.
func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

// likePrefix escapes LIKE wildcards in prefix and appends %.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
