package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

// NewFactStore creates a postgres-backed long-term fact store when
// configured, otherwise an in-memory one. It opens its own connection
// pool independent of NewStore's, since the two stores can be backed by
// different lifetimes in tests without entangling their Close calls.
func NewFactStore(ctx context.Context, databaseURL string) (FactStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryFactStore(), nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres for fact store: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresFactStore(pool), nil
}
