package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation an audit entry describes.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionRead   AuditAction = "read"
)

// AuditActions lists every accepted action in declaration order.
func AuditActions() []AuditAction {
	return []AuditAction{AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionRead}
}

// Valid reports whether a is one of the enumerated actions.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionRead:
		return true
	}
	return false
}

// Snapshot is a JSON-safe view of an entity at one point in time.
type Snapshot map[string]any

// Metadata is caller-defined context attached to an audit entry.
type Metadata map[string]any

// Audit sources.
const (
	SourceWeb     = "web"
	SourceSystem  = "system"
	SourceAPI     = "api"
	SourceCron    = "cron"
	SourceMobile  = "mobile"
	SourceUnknown = "unknown"
)

// AuditEntry is an immutable, append-only record of one entity mutation.
type AuditEntry struct {
	ID         uuid.UUID   `json:"id"`
	EntityType string      `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Action     AuditAction `json:"action"`
	UserID     *string     `json:"userId"`    // nil for system writes
	UserEmail  *string     `json:"userEmail"` // nil when unknown
	Timestamp  time.Time   `json:"timestamp"`
	OldData    Snapshot    `json:"oldData"`
	NewData    Snapshot    `json:"newData"`
	Metadata   Metadata    `json:"metadata"`
	Source     string      `json:"source"`
}

// AuditFilter narrows an audit query. Empty fields do not filter.
// StartDate and EndDate are inclusive bounds on Timestamp.
type AuditFilter struct {
	EntityType string
	EntityID   string
	Action     AuditAction
	UserID     string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
}

// AuditRepository persists audit entries. Entries are never updated; the only
// removal path is DeleteBefore.
type AuditRepository interface {
	Insert(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	// DeleteBefore removes at most limit entries older than cutoff and returns
	// how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
