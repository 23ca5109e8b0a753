package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/praxis/internal/domain"
)

// ChangeConsumer delivers the change events of a collection until ctx ends.
type ChangeConsumer interface {
	Consume(ctx context.Context, collection string, handle domain.ChangeHandler) error
}

// Watcher runs one trigger per watched collection against the change feed.
type Watcher struct {
	feed     ChangeConsumer
	triggers []*Trigger
}

// NewWatcher creates a Watcher over the given triggers.
func NewWatcher(feed ChangeConsumer, triggers ...*Trigger) *Watcher {
	return &Watcher{feed: feed, triggers: triggers}
}

// NewTriggers builds one trigger per collection sharing the same logger.
func NewTriggers(collections []string, logger Logger, metrics *Metrics) []*Trigger {
	triggers := make([]*Trigger, 0, len(collections))
	for _, c := range collections {
		triggers = append(triggers, NewTrigger(c, logger, metrics))
	}
	return triggers
}

// Run blocks until ctx is cancelled or a consumer fails. Events are always
// acknowledged once the trigger has run, including when recording failed;
// the recorder counts those failures and the trigger logs them.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, trig := range w.triggers {
		g.Go(func() error {
			log.Info().Str("collection", trig.Collection()).Msg("audit: watching collection")
			err := w.feed.Consume(gctx, trig.Collection(), func(ctx context.Context, ev domain.ChangeEvent) error {
				if ev.Collection != "" && ev.Collection != trig.Collection() {
					log.Debug().Str("collection", ev.Collection).Msg("audit: ignoring event for unwatched collection")
					return nil
				}
				trig.Handle(ctx, ev)
				return nil
			})
			if err != nil {
				return fmt.Errorf("audit.Watcher.Run: %s: %w", trig.Collection(), err)
			}
			return nil
		})
	}

	return g.Wait()
}
