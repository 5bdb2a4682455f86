package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive stores snapshots in an insert-only table. Snapshots are
// never updated or deleted by the simulator.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a PostgreSQL-backed snapshot archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			id       BIGSERIAL PRIMARY KEY,
			epoch    BIGINT      NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL,
			body     TEXT        NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Save(ctx context.Context, doc Document) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO snapshots (epoch, taken_at, body) VALUES ($1, $2, $3)`,
		doc.Epoch, doc.TakenAt, doc.Body,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Latest(ctx context.Context) (Document, error) {
	var doc Document
	err := a.pool.QueryRow(ctx,
		`SELECT epoch, taken_at, body FROM snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&doc.Epoch, &doc.TakenAt, &doc.Body)
	if err != nil {
		return Document{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return doc, nil
}
