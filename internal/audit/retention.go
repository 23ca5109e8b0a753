package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ScheduleOff disables the in-process retention scheduler.
const ScheduleOff = "off"

const cleanupTimeout = 10 * time.Minute

// Cleaner purges old audit entries. *QueryService satisfies this interface.
type Cleaner interface {
	CleanOld(ctx context.Context, daysToKeep int) (int64, error)
}

// RetentionScheduler runs the retention purge on a cron schedule.
type RetentionScheduler struct {
	cron    *cron.Cron
	cleaner Cleaner
	days    int
}

// NewRetentionScheduler validates schedule (standard 5-field cron syntax)
// and prepares the job. Call Start to begin running it.
func NewRetentionScheduler(cleaner Cleaner, schedule string, daysToKeep int, loc *time.Location) (*RetentionScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	s := &RetentionScheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		cleaner: cleaner,
		days:    daysToKeep,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("audit.NewRetentionScheduler: schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start runs the scheduler in the background.
func (s *RetentionScheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running purge to finish or ctx to end.
func (s *RetentionScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("audit: retention job still running at shutdown")
	}
}

func (s *RetentionScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.cleaner.CleanOld(ctx, s.days)
	if err != nil {
		log.Error().Err(err).Int64("deleted", n).Msg("audit: retention cleanup failed")
		return
	}

	log.Info().
		Int64("deleted", n).
		Int("days_to_keep", s.days).
		Dur("took", time.Since(start)).
		Msg("audit: retention cleanup finished")
}
