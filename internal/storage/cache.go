package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Divas-Gupta30/datachat/internal/metrics"
	"github.com/go-redis/redis/v8"
)

// DefaultSchemaTTL is how long a cached schema snapshot is kept.
const DefaultSchemaTTL = 10 * time.Minute

// SchemaFetcher is implemented by DB.
type SchemaFetcher interface {
	FetchSchemas(ctx context.Context, tableNames []string) ([]TableSchema, error)
}

// SchemaCache keeps schema snapshots in redis in front of a SchemaFetcher.
// Redis failures fall through to the fetcher.
type SchemaCache struct {
	next  SchemaFetcher
	redis *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

// NewSchemaCache connects to redisURL ("redis://host:port/db" or "host:port").
func NewSchemaCache(ctx context.Context, redisURL string, next SchemaFetcher, ttl time.Duration, log *slog.Logger) (*SchemaCache, error) {
	opts, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultSchemaTTL
	}
	if log == nil {
		log = slog.Default()
	}
	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("failed to connect to Redis, schema cache disabled until it is reachable", "error", err)
	}
	return &SchemaCache{next: next, redis: client, ttl: ttl, log: log}, nil
}

func redisOptions(url string) (*redis.Options, error) {
	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: url}, nil
}

func (c *SchemaCache) Close() error { return c.redis.Close() }

func cacheKey(tableNames []string) string {
	sorted := slices.Clone(tableNames)
	slices.Sort(sorted)
	return "schema:" + strings.Join(sorted, ",")
}

// FetchSchemas returns the cached snapshot for tableNames or reads and caches it.
func (c *SchemaCache) FetchSchemas(ctx context.Context, tableNames []string) ([]TableSchema, error) {
	key := cacheKey(tableNames)

	getCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	data, err := c.redis.Get(getCtx, key).Bytes()
	cancel()
	if err == nil {
		var schemas []TableSchema
		if err := json.Unmarshal(data, &schemas); err == nil {
			metrics.SchemaCacheHitsTotal.Inc()
			return restoreOrder(schemas, tableNames), nil
		}
	} else if err != redis.Nil {
		c.log.Warn("schema cache read failed", "error", err)
	}
	metrics.SchemaCacheMissesTotal.Inc()

	schemas, err := c.next.FetchSchemas(ctx, tableNames)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(schemas); err == nil {
		setCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.redis.Set(setCtx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("failed to cache schema", "error", err)
		}
		cancel()
	}
	return schemas, nil
}

// Invalidate drops every cached snapshot that mentions table.
func (c *SchemaCache) Invalidate(ctx context.Context, table string) error {
	iter := c.redis.Scan(ctx, 0, "schema:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if slices.Contains(strings.Split(strings.TrimPrefix(key, "schema:"), ","), table) {
			if err := c.redis.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}

// restoreOrder returns schemas in the order tables were requested.
func restoreOrder(schemas []TableSchema, tableNames []string) []TableSchema {
	byName := make(map[string]TableSchema, len(schemas))
	for _, s := range schemas {
		byName[s.TableName] = s
	}
	out := make([]TableSchema, 0, len(tableNames))
	for _, name := range tableNames {
		if s, ok := byName[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
