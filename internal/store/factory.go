package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/noex/internal/process"
)

// NewFromDSN builds a process.StateStore from a DSN, sniffing the scheme to
// pick the backend: postgres://, postgresql:// -> Postgres; sqlite:// or a
// bare path -> SQLite.
func NewFromDSN(ctx context.Context, dsn string) (process.StateStore, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, fmt.Errorf("store: empty dsn")
	}
	lower := strings.ToLower(d)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, d)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(strings.TrimPrefix(d, "sqlite://"))
	default:
		return NewSQLiteStore(d)
	}
}
