// Package entity is the write path for business documents. Every committed
// write is published on the change feed, where the audit trigger picks it up.
package entity

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/praxis/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// ChangePublisher emits committed changes. *redis.ChangeFeed satisfies this interface.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

type Service struct {
	docs        domain.DocumentRepository
	feed        ChangePublisher
	collections map[string]struct{}
	now         func() time.Time
}

// NewService restricts writes to the given collections.
func NewService(docs domain.DocumentRepository, feed ChangePublisher, collections []string) *Service {
	set := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		set[c] = struct{}{}
	}
	return &Service{
		docs:        docs,
		feed:        feed,
		collections: set,
		now:         time.Now,
	}
}

// Collections returns the accepted collection names, sorted.
func (s *Service) Collections() []string {
	out := make([]string, 0, len(s.collections))
	for c := range s.collections {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (s *Service) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := s.checkTarget(collection, id); err != nil {
		return nil, fmt.Errorf("entity.Service.Get: %w", err)
	}

	doc, err := s.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("entity.Service.Get: %w", err)
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, collection string, limit, offset int) ([]*domain.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, fmt.Errorf("entity.Service.List: %w", err)
	}
	if offset < 0 {
		return nil, fmt.Errorf("entity.Service.List: %w", domain.NewValidationError("offset", "must not be negative"))
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	docs, err := s.docs.List(ctx, collection, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("entity.Service.List: %w", err)
	}
	return docs, nil
}

// Put creates or replaces a document. Bookkeeping fields sent by the caller
// are discarded and restamped: changed on every write, created on the first
// one, and the actor fields only when actor is non-nil. A nil actor is a
// system write. A caller's timestamp field is stored as sent; the server
// never stamps it, it is only left out of change comparison.
func (s *Service) Put(ctx context.Context, actor *domain.Identity, collection, id string, data domain.Snapshot) (domain.Snapshot, error) {
	if err := s.checkTarget(collection, id); err != nil {
		return nil, fmt.Errorf("entity.Service.Put: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("entity.Service.Put: %w", domain.NewValidationError("data", "is required"))
	}

	now := s.now().UTC()
	before, after, err := s.docs.Put(ctx, collection, id, func(before domain.Snapshot) domain.Snapshot {
		return stamp(before, data, actor, now)
	})
	if err != nil {
		return nil, fmt.Errorf("entity.Service.Put: %w", err)
	}

	s.publish(ctx, domain.ChangeEvent{
		Collection:  collection,
		DocumentID:  id,
		Before:      before,
		After:       after,
		CommittedAt: now,
	})

	return after, nil
}

func (s *Service) Delete(ctx context.Context, collection, id string) error {
	if err := s.checkTarget(collection, id); err != nil {
		return fmt.Errorf("entity.Service.Delete: %w", err)
	}

	before, err := s.docs.Delete(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("entity.Service.Delete: %w", err)
	}

	s.publish(ctx, domain.ChangeEvent{
		Collection:  collection,
		DocumentID:  id,
		Before:      before,
		CommittedAt: s.now().UTC(),
	})

	return nil
}

// publish runs after commit; the write has already succeeded, so a feed
// failure only costs the audit entry and is logged.
func (s *Service) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := s.feed.PublishChange(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("collection", ev.Collection).
			Str("entity_id", ev.DocumentID).
			Msg("entity: failed to publish change event")
	}
}

func (s *Service) checkCollection(collection string) error {
	if _, ok := s.collections[collection]; !ok {
		return domain.NewValidationError("collection", fmt.Sprintf("%q is not a managed collection", collection))
	}
	return nil
}

func (s *Service) checkTarget(collection, id string) error {
	if err := s.checkCollection(collection); err != nil {
		return err
	}
	if id == "" {
		return domain.NewValidationError("id", "is required")
	}
	return nil
}

func stamp(before, data domain.Snapshot, actor *domain.Identity, now time.Time) domain.Snapshot {
	out := make(domain.Snapshot, len(data)+5)
	for k, v := range data {
		switch k {
		case domain.FieldCreated, domain.FieldChanged,
			domain.FieldLastModifiedBy, domain.FieldLastModifiedByEmail:
			continue
		}
		out[k] = v
	}

	ts := now.Format(time.RFC3339Nano)
	out[domain.FieldChanged] = ts
	if created, ok := before[domain.FieldCreated]; ok {
		out[domain.FieldCreated] = created
	} else {
		out[domain.FieldCreated] = ts
	}

	if actor != nil && actor.UserID != "" {
		out[domain.FieldLastModifiedBy] = actor.UserID
		if actor.Email != "" {
			out[domain.FieldLastModifiedByEmail] = actor.Email
		}
	}

	return out
}
