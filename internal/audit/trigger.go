package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/praxis/internal/domain"
)

// SystemActorEmail is recorded as the actor email of automatic writes.
const SystemActorEmail = "Sistema Automatico"

// Logger records a single audit entry. *Recorder satisfies this interface.
type Logger interface {
	Log(ctx context.Context, p LogParams) (uuid.UUID, error)
}

// Trigger turns change events of one collection into audit entries.
type Trigger struct {
	collection string
	logger     Logger
	metrics    *Metrics
}

// NewTrigger creates the trigger for collection.
func NewTrigger(collection string, logger Logger, metrics *Metrics) *Trigger {
	return &Trigger{
		collection: collection,
		logger:     logger,
		metrics:    metrics,
	}
}

// Collection returns the watched collection name.
func (t *Trigger) Collection() string { return t.collection }

// Handle emits at most one audit entry for ev. It never fails: recorder
// errors are logged so the originating write is unaffected.
func (t *Trigger) Handle(ctx context.Context, ev domain.ChangeEvent) {
	logger := log.With().
		Str("collection", t.collection).
		Str("entity_id", ev.DocumentID).
		Logger()

	var (
		action  domain.AuditAction
		oldData domain.Snapshot
		newData domain.Snapshot
	)

	switch {
	case ev.Before == nil && ev.After != nil:
		action = domain.AuditActionCreate
		newData = ev.After
	case ev.Before != nil && ev.After != nil:
		if !HasActualChanges(ev.Before, ev.After) {
			t.metrics.skipped(t.collection, "no_change")
			logger.Debug().Msg("audit: no relevant change, entry not created")
			return
		}
		action = domain.AuditActionUpdate
		oldData = ev.Before
		newData = ev.After
	case ev.Before != nil && ev.After == nil:
		action = domain.AuditActionDelete
		oldData = ev.Before
	default:
		t.metrics.skipped(t.collection, "no_data")
		logger.Warn().Msg("audit: write event without before or after data")
		return
	}

	userID, userEmail := attribute(ev.Before, ev.After)
	manual := userID != nil

	source := domain.SourceSystem
	actionType := "automatic"
	if manual {
		source = domain.SourceWeb
		actionType = "manual"
	}

	id, err := t.logger.Log(ctx, LogParams{
		EntityType: t.collection,
		EntityID:   ev.DocumentID,
		Action:     action,
		UserID:     userID,
		UserEmail:  userEmail,
		OldData:    oldData,
		NewData:    newData,
		Metadata:   domain.Metadata{"actionType": actionType},
		Source:     source,
	})
	if err != nil {
		logger.Error().Err(err).Str("action", string(action)).Msg("audit: trigger failed to record entry")
		return
	}

	logger.Debug().Str("audit_id", id.String()).Str("action", string(action)).Msg("audit: trigger recorded entry")
}

// attribute derives the actor from the bookkeeping fields, preferring the
// after snapshot. Without an actor the email falls back to SystemActorEmail.
func attribute(before, after domain.Snapshot) (userID, userEmail *string) {
	userID = firstString(domain.FieldLastModifiedBy, after, before)
	userEmail = firstString(domain.FieldLastModifiedByEmail, after, before)
	if userEmail == nil && userID == nil {
		system := SystemActorEmail
		userEmail = &system
	}
	return userID, userEmail
}

// firstString returns the first non-empty string stored under key.
func firstString(key string, snapshots ...domain.Snapshot) *string {
	for _, s := range snapshots {
		if v, ok := s[key].(string); ok && v != "" {
			return &v
		}
	}
	return nil
}
