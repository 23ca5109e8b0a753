package audit_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/domain"
)

// ---------------------------------------------------------------------------
// memRepo — in-memory domain.AuditRepository with the same ordering and
// filtering contract as the postgres repo.
// ---------------------------------------------------------------------------

type memRepo struct {
	mu          sync.Mutex
	entries     []*domain.AuditEntry
	insertErr   error
	listErr     error
	deleteErr   error
	deleteCalls int
}

func (m *memRepo) Insert(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRepo) List(_ context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*domain.AuditEntry
	for _, e := range m.entries {
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) DeleteBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}

	var (
		kept    []*domain.AuditEntry
		deleted int64
	)
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) && deleted < int64(limit) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}

func (m *memRepo) all() []*domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditEntry(nil), m.entries...)
}

// seed inserts a bare entry with the given timestamp.
func (m *memRepo) seed(entityType, entityID string, action domain.AuditAction, userID string, ts time.Time) *domain.AuditEntry {
	e := &domain.AuditEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  ts,
		Metadata:   domain.Metadata{},
		Source:     domain.SourceUnknown,
	}
	if userID != "" {
		e.UserID = &userID
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e
}

// ---------------------------------------------------------------------------
// mockLogger — records Log calls for trigger tests.
// ---------------------------------------------------------------------------

type mockLogger struct {
	mu    sync.Mutex
	calls []audit.LogParams
	err   error
}

func (m *mockLogger) Log(_ context.Context, p audit.LogParams) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, p)
	if m.err != nil {
		return uuid.Nil, m.err
	}
	return uuid.New(), nil
}

func (m *mockLogger) params() []audit.LogParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.LogParams(nil), m.calls...)
}

// ---------------------------------------------------------------------------
// mockLive — captures live publications.
// ---------------------------------------------------------------------------

type mockLive struct {
	mu        sync.Mutex
	published []*domain.AuditEntry
	err       error
}

func (m *mockLive) PublishAudit(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, e)
	return m.err
}

var errStore = errors.New("pg: connection refused")

func strPtr(s string) *string { return &s }
