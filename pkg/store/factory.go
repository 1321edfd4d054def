package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// New builds a Store from a DSN. Supported schemes:
//
//	mem://               in-memory map (default when dsn is empty)
//	redis://host:port/0  redis hash, one field per poll
//	clickhouse://host:9000/db?username=u&password=p
func New(ctx context.Context, logger *zap.Logger, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryStore(), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "", "mem", "memory", "inmem":
		return NewMemoryStore(), nil
	case "redis", "rediss":
		return NewRedisStore(ctx, logger, dsn)
	case "clickhouse", "tcp":
		return NewClickHouseStore(ctx, logger, dsn)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}
