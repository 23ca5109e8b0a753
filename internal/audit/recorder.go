// Package audit records, queries and purges the audit trail of entity
// mutations, and turns datastore change events into audit entries.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/praxis/internal/domain"
)

// LogParams describes one audit entry to record. EntityType, EntityID and
// Action are required.
type LogParams struct {
	EntityType string
	EntityID   string
	Action     domain.AuditAction
	UserID     *string
	UserEmail  *string
	OldData    domain.Snapshot
	NewData    domain.Snapshot
	Metadata   domain.Metadata
	Source     string
}

// LivePublisher fans newly recorded entries out to live subscribers.
type LivePublisher interface {
	PublishAudit(ctx context.Context, entry *domain.AuditEntry) error
}

// Recorder validates, sanitizes and persists audit entries.
type Recorder struct {
	repo    domain.AuditRepository
	live    LivePublisher // optional
	metrics *Metrics      // optional
	now     func() time.Time
}

// NewRecorder creates a Recorder. live and metrics may be nil.
func NewRecorder(repo domain.AuditRepository, live LivePublisher, metrics *Metrics) *Recorder {
	return &Recorder{
		repo:    repo,
		live:    live,
		metrics: metrics,
		now:     time.Now,
	}
}

// Log persists one audit entry and returns its id. Validation failures are
// *domain.ValidationError; storage failures wrap domain.ErrPersistence.
func (r *Recorder) Log(ctx context.Context, p LogParams) (uuid.UUID, error) {
	entry, err := r.build(p)
	if err != nil {
		r.metrics.failed("validation")
		return uuid.Nil, fmt.Errorf("audit.Recorder.Log: %w", err)
	}

	if err = r.repo.Insert(ctx, entry); err != nil {
		r.metrics.failed("persistence")
		log.Error().Err(err).
			Str("entity_type", entry.EntityType).
			Str("entity_id", entry.EntityID).
			Str("action", string(entry.Action)).
			Msg("audit: failed to persist entry")
		return uuid.Nil, fmt.Errorf("audit.Recorder.Log: %w: %w", domain.ErrPersistence, err)
	}

	r.metrics.recorded(entry.EntityType, string(entry.Action))
	log.Info().
		Str("audit_id", entry.ID.String()).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityID).
		Str("action", string(entry.Action)).
		Msg("audit entry recorded")

	if r.live != nil {
		if pubErr := r.live.PublishAudit(ctx, entry); pubErr != nil {
			log.Warn().Err(pubErr).Str("audit_id", entry.ID.String()).Msg("audit: live publish failed")
		}
	}

	return entry.ID, nil
}

func (r *Recorder) build(p LogParams) (*domain.AuditEntry, error) {
	switch {
	case p.EntityType == "":
		return nil, domain.NewValidationError("entityType", "is required")
	case p.EntityID == "":
		return nil, domain.NewValidationError("entityId", "is required")
	case p.Action == "":
		return nil, domain.NewValidationError("action", "is required")
	case !p.Action.Valid():
		return nil, domain.NewValidationError("action", fmt.Sprintf("%q is not one of create, update, delete, read", p.Action))
	}

	oldData, err := SanitizeStrict(p.OldData)
	if err != nil {
		return nil, domain.NewValidationError("oldData", err.Error())
	}
	newData, err := SanitizeStrict(p.NewData)
	if err != nil {
		return nil, domain.NewValidationError("newData", err.Error())
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}

	source := p.Source
	if source == "" {
		source = domain.SourceUnknown
	}

	return &domain.AuditEntry{
		ID:         uuid.New(),
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Action:     p.Action,
		UserID:     p.UserID,
		UserEmail:  p.UserEmail,
		Timestamp:  r.now().UTC(),
		OldData:    oldData,
		NewData:    newData,
		Metadata:   metadata,
		Source:     source,
	}, nil
}

// IsValidation reports whether err was caused by invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
