package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/praxis/internal/domain"
)

const auditColumns = `id, entity_type, entity_id, action, user_id, user_email, timestamp, old_data, new_data, metadata, source`

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	oldData, err := marshalNullable(entry.OldData)
	if err != nil {
		return fmt.Errorf("auditRepo.Insert: marshal old data: %w", err)
	}
	newData, err := marshalNullable(entry.NewData)
	if err != nil {
		return fmt.Errorf("auditRepo.Insert: marshal new data: %w", err)
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("auditRepo.Insert: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.EntityType, entry.EntityID, string(entry.Action),
		entry.UserID, entry.UserEmail, entry.Timestamp,
		oldData, newData, meta, entry.Source,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Insert: %w", err)
	}

	return nil
}

func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	query, args := buildListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.List: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows, "auditRepo.List")
}

func (r *AuditRepo) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM audit_logs WHERE id IN (
		     SELECT id FROM audit_logs WHERE timestamp < $1 ORDER BY timestamp LIMIT $2
		 )`,
		cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.DeleteBefore: %w", err)
	}

	return tag.RowsAffected(), nil
}

// buildListQuery renders the filtered SELECT. Only non-empty filter fields
// become predicates; date bounds are inclusive.
func buildListQuery(f domain.AuditFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.EntityType != "" {
		where("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		where("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		where("action = $%d", string(f.Action))
	}
	if f.UserID != "" {
		where("user_id = $%d", f.UserID)
	}
	if f.StartDate != nil {
		where("timestamp >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		where("timestamp <= $%d", *f.EndDate)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + auditColumns + " FROM audit_logs")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY timestamp DESC, id DESC")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

func scanAuditEntries(rows pgx.Rows, caller string) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			e                      domain.AuditEntry
			action                 string
			oldData, newData, meta []byte
		)

		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &action, &e.UserID, &e.UserEmail,
			&e.Timestamp, &oldData, &newData, &meta, &e.Source,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		e.Action = domain.AuditAction(action)
		e.Timestamp = e.Timestamp.UTC()

		if err := unmarshalNullable(oldData, &e.OldData); err != nil {
			return nil, fmt.Errorf("%s: unmarshal old data: %w", caller, err)
		}
		if err := unmarshalNullable(newData, &e.NewData); err != nil {
			return nil, fmt.Errorf("%s: unmarshal new data: %w", caller, err)
		}
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}

// marshalNullable encodes s, mapping a nil snapshot to SQL NULL.
func marshalNullable(s domain.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func unmarshalNullable(raw []byte, dst *domain.Snapshot) error {
	if len(raw) == 0 || string(raw) == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal(raw, dst)
}
