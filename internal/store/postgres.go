package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps every collection as one row of the records table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, key string) (Record, error) {
	var (
		data    string
		version int64
	)
	query := `SELECT data::text, version FROM records WHERE collection = $1`
	err := p.pool.QueryRow(ctx, query, key).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("database query error: %w", err)
	}
	return Record{Data: []byte(data), Version: version}, nil
}

func (p *Postgres) Init(ctx context.Context, key string, def []byte) error {
	query := `
		INSERT INTO records (collection, version, data)
		VALUES ($1, 1, $2::jsonb)
		ON CONFLICT (collection) DO NOTHING`
	if _, err := p.pool.Exec(ctx, query, key, string(def)); err != nil {
		return fmt.Errorf("init %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Commit(ctx context.Context, writes ...Write) error {
	if err := validate(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, w := range writes {
		ok, err := applyWrite(ctx, tx, w)
		if err != nil {
			return fmt.Errorf("write %s: %w", w.Key, err)
		}
		if !ok {
			return ErrConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func applyWrite(ctx context.Context, tx pgx.Tx, w Write) (bool, error) {
	if w.Check {
		// FOR SHARE holds off concurrent writers of the row until we commit.
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM records WHERE collection = $1 AND version = $2 FOR SHARE`,
			w.Key, w.Version).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return err == nil, err
	}

	var (
		query string
		args  []any
	)
	switch {
	case w.Delete:
		query = `DELETE FROM records WHERE collection = $1 AND version = $2`
		args = []any{w.Key, w.Version}
	case w.Version == 0:
		query = `
			INSERT INTO records (collection, version, data)
			VALUES ($1, 1, $2::jsonb)
			ON CONFLICT (collection) DO NOTHING`
		args = []any{w.Key, string(w.Data)}
	default:
		query = `
			UPDATE records SET data = $2::jsonb, version = version + 1, updated_at = NOW()
			WHERE collection = $1 AND version = $3`
		args = []any{w.Key, string(w.Data), w.Version}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
