package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/praxis/internal/domain"
)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	d := domain.Document{Collection: collection, ID: id}
	var data []byte

	err := r.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("documentRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("documentRepo.Get: %w", err)
	}

	if err := json.Unmarshal(data, &d.Data); err != nil {
		return nil, fmt.Errorf("documentRepo.Get: unmarshal: %w", err)
	}

	return &d, nil
}

func (r *DocumentRepo) List(ctx context.Context, collection string, limit, offset int) ([]*domain.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, data, updated_at FROM documents WHERE collection = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`,
		collection, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.List: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d := domain.Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&d.ID, &data, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("documentRepo.List: scan: %w", err)
		}
		if err := json.Unmarshal(data, &d.Data); err != nil {
			return nil, fmt.Errorf("documentRepo.List: unmarshal: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documentRepo.List: rows: %w", err)
	}

	return docs, nil
}

// Put serializes writers of the same document with a transaction-scoped
// advisory lock, so the returned before snapshot is exactly what mutate saw.
func (r *DocumentRepo) Put(ctx context.Context, collection, id string, mutate func(before domain.Snapshot) domain.Snapshot) (domain.Snapshot, domain.Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, collection+"/"+id); err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: lock: %w", err)
	}

	var (
		before domain.Snapshot
		raw    []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, nil, fmt.Errorf("documentRepo.Put: select: %w", err)
	default:
		if err := json.Unmarshal(raw, &before); err != nil {
			return nil, nil, fmt.Errorf("documentRepo.Put: unmarshal: %w", err)
		}
	}

	after := mutate(before)
	data, err := json.Marshal(after)
	if err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: marshal: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		collection, id, data, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: upsert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: commit: %w", err)
	}

	// Normalize to the stored JSON form so events carry what readers will see.
	var stored domain.Snapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("documentRepo.Put: unmarshal stored: %w", err)
	}

	return before, stored, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, collection, id string) (domain.Snapshot, error) {
	var raw []byte

	err := r.pool.QueryRow(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2 RETURNING data`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("documentRepo.Delete: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("documentRepo.Delete: %w", err)
	}

	var before domain.Snapshot
	if err := json.Unmarshal(raw, &before); err != nil {
		return nil, fmt.Errorf("documentRepo.Delete: unmarshal: %w", err)
	}

	return before, nil
}
