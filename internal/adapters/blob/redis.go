package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/ports"
)

const redisScheme = "redis://"

// RedisGateway keeps object bodies and metadata in plain keys and orders them
// through a sorted set scored by an INCR sequence.
type RedisGateway struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisGateway connects to Redis and verifies the connection
func NewRedisGateway(ctx context.Context, cfg config.RedisConfig) (*RedisGateway, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.GetAddr(), err)
	}

	return NewRedisGatewayWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisGatewayWithClient wraps an existing client
func NewRedisGatewayWithClient(client *redis.Client, keyPrefix string) *RedisGateway {
	if keyPrefix == "" {
		keyPrefix = "blob"
	}
	return &RedisGateway{client: client, keyPrefix: keyPrefix}
}

func (g *RedisGateway) seqKey() string   { return g.keyPrefix + ":seq" }
func (g *RedisGateway) indexKey() string { return g.keyPrefix + ":index" }

func (g *RedisGateway) bodyKey(pathname string) string {
	return g.keyPrefix + ":object:" + pathname
}

func (g *RedisGateway) metaKey(pathname string) string {
	return g.keyPrefix + ":meta:" + pathname
}

// List implements ports.BlobGateway.
func (g *RedisGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	names, err := g.client.ZRevRange(ctx, g.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	var matched []string
	for _, name := range names {
		if !strings.HasPrefix(name, opts.Prefix) {
			continue
		}
		matched = append(matched, name)
		if opts.Limit > 0 && len(matched) == opts.Limit {
			break
		}
	}
	if len(matched) == 0 {
		return []ports.BlobObject{}, nil
	}

	keys := make([]string, len(matched))
	for i, name := range matched {
		keys[i] = g.metaKey(name)
	}
	metas, err := g.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load blob metadata: %w", err)
	}

	out := make([]ports.BlobObject, 0, len(metas))
	for _, raw := range metas {
		s, ok := raw.(string)
		if !ok {
			// deleted between ZREVRANGE and MGET
			continue
		}
		var obj ports.BlobObject
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("decode blob metadata: %w", err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Fetch implements ports.BlobGateway.
func (g *RedisGateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	pathname, err := trimScheme(url, redisScheme)
	if err != nil {
		return nil, err
	}

	body, err := g.client.Get(ctx, g.bodyKey(pathname)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetch %s: %w", url, entities.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	return body, nil
}

// Put implements ports.BlobGateway.
func (g *RedisGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	obj := ports.BlobObject{
		URL:         redisScheme + pathname,
		Pathname:    pathname,
		ContentType: opts.ContentType,
		Size:        int64(len(body)),
		UploadedAt:  time.Now().UTC(),
	}
	meta, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode blob metadata: %w", err)
	}

	created, err := g.client.SetNX(ctx, g.metaKey(pathname), meta, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("put blob metadata: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("blob %s already exists", pathname)
	}

	seq, err := g.client.Incr(ctx, g.seqKey()).Result()
	if err != nil {
		g.client.Del(ctx, g.metaKey(pathname))
		return nil, fmt.Errorf("allocate blob sequence: %w", err)
	}

	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, g.bodyKey(pathname), body, 0)
		pipe.ZAdd(ctx, g.indexKey(), &redis.Z{Score: float64(seq), Member: pathname})
		return nil
	})
	if err != nil {
		g.client.Del(ctx, g.metaKey(pathname))
		return nil, fmt.Errorf("put blob: %w", err)
	}

	return &obj, nil
}

// Delete implements ports.BlobGateway.
func (g *RedisGateway) Delete(ctx context.Context, url string) error {
	pathname, err := trimScheme(url, redisScheme)
	if err != nil {
		return err
	}

	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, g.indexKey(), pathname)
		pipe.Del(ctx, g.bodyKey(pathname), g.metaKey(pathname))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (g *RedisGateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return g.client.Ping(ctx).Err()
}

// Close implements ports.Closer.
func (g *RedisGateway) Close() error {
	return g.client.Close()
}
