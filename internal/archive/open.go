package archive

import (
	"context"
	"fmt"
	"net/url"

	"evm-tx-monitor/internal/storage"
	"evm-tx-monitor/internal/storage/clickhouse"
	"evm-tx-monitor/internal/storage/memory"
	"evm-tx-monitor/internal/storage/postgres"
)

// Open connects to the store named by dsn and applies its schema.
// Supported schemes: postgres, postgresql, clickhouse, memory.
func Open(ctx context.Context, dsn string) (storage.ArchiveStore, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		// url.Error carries the full DSN, credentials included.
		return nil, fmt.Errorf("%w: unparsable DSN", storage.ErrUnsupportedDSN)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewArchiveStore(pool), nil

	case "clickhouse":
		conn, err := clickhouse.NewConn(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := conn.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return clickhouse.NewArchiveStore(conn), nil

	case "memory":
		return memory.NewArchiveStore(), nil

	default:
		return nil, fmt.Errorf("%w: scheme %q", storage.ErrUnsupportedDSN, u.Scheme)
	}
}
