package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) FetchSchemas(_ context.Context, tableNames []string) ([]TableSchema, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]TableSchema, len(tableNames))
	for i, n := range tableNames {
		out[i] = TableSchema{TableName: n, Columns: []Column{{Name: "id", Type: "BIGINT"}}}
	}
	return out, nil
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey([]string{"b", "a"}), cacheKey([]string{"a", "b"}))
	assert.Equal(t, "schema:a,b", cacheKey([]string{"b", "a"}))
}

func TestRestoreOrder(t *testing.T) {
	got := restoreOrder([]TableSchema{{TableName: "a"}, {TableName: "b"}}, []string{"b", "a"})
	assert.Equal(t, []TableSchema{{TableName: "b"}, {TableName: "a"}}, got)
}

func TestSchemaCache_RedisDown(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	next := &countingFetcher{}
	// nothing listens on port 1; every call falls through to the fetcher
	c, err := NewSchemaCache(context.Background(), "localhost:1", next, time.Minute, log)
	require.NoError(t, err)
	defer c.Close()

	schemas, err := c.FetchSchemas(context.Background(), []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, "orders", schemas[0].TableName)
	assert.Equal(t, 1, next.calls)

	next.err = errors.New("db down")
	_, err = c.FetchSchemas(context.Background(), []string{"orders"})
	assert.ErrorContains(t, err, "db down")
}

func TestSchemaCache_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := t.Context()

	var (
		ctr testcontainers.Container
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("docker not available: %v", r)
			}
		}()
		ctr, err = testcontainers.Run(ctx, "redis:7-alpine",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
		)
	}()
	if err != nil {
		t.Skipf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	addr, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	next := &countingFetcher{}
	c, err := NewSchemaCache(ctx, "redis://"+addr+"/0", next, time.Minute, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer c.Close()

	first, err := c.FetchSchemas(ctx, []string{"orders", "customers"})
	require.NoError(t, err)
	second, err := c.FetchSchemas(ctx, []string{"customers", "orders"})
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, "customers", second[0].TableName)

	require.NoError(t, c.Invalidate(ctx, "orders"))
	_, err = c.FetchSchemas(ctx, []string{"orders", "customers"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
