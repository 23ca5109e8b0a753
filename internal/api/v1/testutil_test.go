package v1_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/domain"
	"github.com/gosuda/praxis/internal/server/middleware"
)

var errDB = errors.New("pg: connection refused")

// ---------------------------------------------------------------------------
// Context helpers — inject identity into context for DoCtx
// ---------------------------------------------------------------------------

func userCtx(uid, email, role string) context.Context {
	return middleware.WithIdentity(context.Background(), domain.Identity{UserID: uid, Email: email, Role: role})
}

func operatorCtx() context.Context {
	return userCtx("uid-op", "op@example.com", middleware.RoleOperator)
}

func adminCtx() context.Context {
	return userCtx("uid-admin", "admin@example.com", middleware.RoleAdmin)
}

func viewerCtx() context.Context {
	return userCtx("uid-viewer", "", middleware.RoleViewer)
}

// ---------------------------------------------------------------------------
// Mock AuditRecorder
// ---------------------------------------------------------------------------

type mockRecorder struct {
	logFunc func(ctx context.Context, p audit.LogParams) (uuid.UUID, error)
}

func (m *mockRecorder) Log(ctx context.Context, p audit.LogParams) (uuid.UUID, error) {
	return m.logFunc(ctx, p)
}

// ---------------------------------------------------------------------------
// Mock AuditQuerier
// ---------------------------------------------------------------------------

type mockQuerier struct {
	byEntityFunc func(ctx context.Context, entityType, entityID string, limit int) ([]*domain.AuditEntry, error)
	byUserFunc   func(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error)
	searchFunc   func(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error)
	cleanOldFunc func(ctx context.Context, days int) (int64, error)
}

func (m *mockQuerier) ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.AuditEntry, error) {
	return m.byEntityFunc(ctx, entityType, entityID, limit)
}

func (m *mockQuerier) ByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error) {
	return m.byUserFunc(ctx, userID, limit)
}

func (m *mockQuerier) Search(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	return m.searchFunc(ctx, f)
}

func (m *mockQuerier) CleanOld(ctx context.Context, days int) (int64, error) {
	return m.cleanOldFunc(ctx, days)
}

// ---------------------------------------------------------------------------
// Mock DocumentService
// ---------------------------------------------------------------------------

type mockDocs struct {
	getFunc    func(ctx context.Context, collection, id string) (*domain.Document, error)
	listFunc   func(ctx context.Context, collection string, limit, offset int) ([]*domain.Document, error)
	putFunc    func(ctx context.Context, actor *domain.Identity, collection, id string, data domain.Snapshot) (domain.Snapshot, error)
	deleteFunc func(ctx context.Context, collection, id string) error
}

func (m *mockDocs) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	return m.getFunc(ctx, collection, id)
}

func (m *mockDocs) List(ctx context.Context, collection string, limit, offset int) ([]*domain.Document, error) {
	return m.listFunc(ctx, collection, limit, offset)
}

func (m *mockDocs) Put(ctx context.Context, actor *domain.Identity, collection, id string, data domain.Snapshot) (domain.Snapshot, error) {
	return m.putFunc(ctx, actor, collection, id, data)
}

func (m *mockDocs) Delete(ctx context.Context, collection, id string) error {
	return m.deleteFunc(ctx, collection, id)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func fixedTime() time.Time {
	return time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)
}

func updateEntry() *domain.AuditEntry {
	uid := "uid-op"
	email := "op@example.com"
	return &domain.AuditEntry{
		ID:         uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
		EntityType: "utenti",
		EntityID:   "u1",
		Action:     domain.AuditActionUpdate,
		UserID:     &uid,
		UserEmail:  &email,
		Timestamp:  fixedTime(),
		OldData:    domain.Snapshot{"email": "a@x.it", "changed": "t1"},
		NewData:    domain.Snapshot{"email": "b@x.it", "changed": "t2"},
		Metadata:   domain.Metadata{"actionType": "manual"},
		Source:     domain.SourceWeb,
	}
}

func createEntry() *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:         uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		EntityType: "utenti",
		EntityID:   "u1",
		Action:     domain.AuditActionCreate,
		Timestamp:  fixedTime().Add(-time.Hour),
		NewData:    domain.Snapshot{"email": "a@x.it"},
		Metadata:   domain.Metadata{"actionType": "automatic"},
		Source:     domain.SourceSystem,
	}
}
