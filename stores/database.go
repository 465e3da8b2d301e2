package stores

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database represents a PostgreSQL-backed store.
type Database struct {
	pool *pgxpool.Pool
}

// Close closes the underlying database connection.
func (db *Database) Close() {
	db.pool.Close()
}

// NewStore returns an initialized Database instance.
func NewStore(ctx context.Context, dc DatabaseConfig) (*Database, error) {
	pool, err := pgxpool.New(ctx, dc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	} else if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Printf("Connected to SQL database %s, %s:%d\n", dc.Database, dc.Host, dc.Port)
	return &Database{pool}, nil
}

func (db *Database) txn(fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx := context.Background()
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
