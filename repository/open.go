package repository

import (
	"context"
	"fmt"
)

// Open connects to the configured backend and makes sure the files table
// exists. backend is "postgres" or "sqlite".
func Open(ctx context.Context, backend, databaseURL, sqlitePath string) (Repository, error) {
	switch backend {
	case "postgres":
		pool, err := ConnectPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		repo := NewPostgresRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "sqlite":
		db, err := OpenSQLite(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		repo := NewSQLiteRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
