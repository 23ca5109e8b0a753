package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/praxis/internal/domain"
)

// Query defaults.
const (
	DefaultEntityLimit   = 50
	DefaultSearchLimit   = 100
	MaxLimit             = 1000
	DefaultRetentionDays = 90
	DefaultCleanupBatch  = 500
)

// QueryService is the read side of the audit trail plus retention cleanup.
type QueryService struct {
	repo      domain.AuditRepository
	batchSize int
	metrics   *Metrics
	now       func() time.Time
}

// NewQueryService creates a QueryService. batchSize bounds each delete
// statement issued by CleanOld; non-positive values use DefaultCleanupBatch.
func NewQueryService(repo domain.AuditRepository, batchSize int, metrics *Metrics) *QueryService {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatch
	}
	return &QueryService{
		repo:      repo,
		batchSize: batchSize,
		metrics:   metrics,
		now:       time.Now,
	}
}

// ByEntity returns the most recent entries for one entity.
func (s *QueryService) ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.AuditEntry, error) {
	if entityType == "" {
		return nil, fmt.Errorf("audit.QueryService.ByEntity: %w", domain.NewValidationError("entityType", "is required"))
	}
	if entityID == "" {
		return nil, fmt.Errorf("audit.QueryService.ByEntity: %w", domain.NewValidationError("entityId", "is required"))
	}

	entries, err := s.repo.List(ctx, domain.AuditFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Limit:      clampLimit(limit, DefaultEntityLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("audit.QueryService.ByEntity: %w: %w", domain.ErrPersistence, err)
	}
	return entries, nil
}

// ByUser returns the most recent entries attributed to userID.
func (s *QueryService) ByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("audit.QueryService.ByUser: %w", domain.NewValidationError("userId", "is required"))
	}

	entries, err := s.repo.List(ctx, domain.AuditFilter{
		UserID: userID,
		Limit:  clampLimit(limit, DefaultEntityLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("audit.QueryService.ByUser: %w: %w", domain.ErrPersistence, err)
	}
	return entries, nil
}

// Search applies every non-empty filter field conjunctively.
func (s *QueryService) Search(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, fmt.Errorf("audit.QueryService.Search: %w",
			domain.NewValidationError("action", fmt.Sprintf("%q is not one of create, update, delete, read", filter.Action)))
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, fmt.Errorf("audit.QueryService.Search: %w", domain.NewValidationError("startDate", "must not be after endDate"))
	}

	filter.Limit = clampLimit(filter.Limit, DefaultSearchLimit)

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("audit.QueryService.Search: %w: %w", domain.ErrPersistence, err)
	}
	return entries, nil
}

// CleanOld deletes entries older than daysToKeep days (DefaultRetentionDays
// when zero) in sequential batches and returns how many were removed.
func (s *QueryService) CleanOld(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, fmt.Errorf("audit.QueryService.CleanOld: %w", domain.NewValidationError("daysToKeep", "must not be negative"))
	}
	if daysToKeep == 0 {
		daysToKeep = DefaultRetentionDays
	}

	cutoff := s.now().UTC().AddDate(0, 0, -daysToKeep)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("audit.QueryService.CleanOld: %w", err)
		}

		n, err := s.repo.DeleteBefore(ctx, cutoff, s.batchSize)
		if err != nil {
			s.metrics.purged(total)
			return total, fmt.Errorf("audit.QueryService.CleanOld: %w: %w", domain.ErrPersistence, err)
		}
		total += n

		if n < int64(s.batchSize) {
			break
		}
	}

	s.metrics.purged(total)
	if total == 0 {
		log.Info().Int("days_to_keep", daysToKeep).Msg("audit: no entries to purge")
	} else {
		log.Info().Int64("deleted", total).Int("days_to_keep", daysToKeep).Msg("audit: purged old entries")
	}

	return total, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
