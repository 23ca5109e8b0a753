package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/domain"
)

// AuditRecorder persists manual audit entries.
// *audit.Recorder satisfies this interface.
type AuditRecorder interface {
	Log(ctx context.Context, p audit.LogParams) (uuid.UUID, error)
}

// AuditQuerier reads the audit trail and purges it.
// *audit.QueryService satisfies this interface.
type AuditQuerier interface {
	ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.AuditEntry, error)
	ByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error)
	Search(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)
	CleanOld(ctx context.Context, daysToKeep int) (int64, error)
}

// DocumentService abstracts the entity write path for handler testing.
// *entity.Service satisfies this interface.
type DocumentService interface {
	Get(ctx context.Context, collection, id string) (*domain.Document, error)
	List(ctx context.Context, collection string, limit, offset int) ([]*domain.Document, error)
	Put(ctx context.Context, actor *domain.Identity, collection, id string, data domain.Snapshot) (domain.Snapshot, error)
	Delete(ctx context.Context, collection, id string) error
}
