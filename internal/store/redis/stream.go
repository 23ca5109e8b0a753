package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/praxis/internal/domain"
)

const (
	eventField     = "event"
	readCount      = 16
	defaultBlock   = 5 * time.Second
	readErrBackoff = time.Second
	ackTimeout     = 2 * time.Second

	// Pending entries idle longer than defaultClaimIdle are taken over by
	// whichever consumer sweeps next, including ones whose owner is gone.
	defaultClaimIdle  = time.Minute
	defaultClaimEvery = 30 * time.Second
)

// ChangeFeed carries committed document changes over Redis Streams, one
// stream per collection. Delivery is at-least-once: an event is acknowledged
// only after its handler returns nil. Unacknowledged events stay pending and
// are retried by the periodic claim sweep of any consumer in the group.
type ChangeFeed struct {
	client     *redis.Client
	group      string
	consumer   string
	maxLen     int64
	block      time.Duration
	claimIdle  time.Duration
	claimEvery time.Duration
}

func NewChangeFeed(ps *PubSub, group, consumer string, maxLen int64) *ChangeFeed {
	return &ChangeFeed{
		client:     ps.client,
		group:      group,
		consumer:   consumer,
		maxLen:     maxLen,
		block:      defaultBlock,
		claimIdle:  defaultClaimIdle,
		claimEvery: defaultClaimEvery,
	}
}

// ChangeStream returns the stream key holding the change events of collection.
func ChangeStream(collection string) string {
	return "changes:" + collection
}

func (f *ChangeFeed) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis.ChangeFeed.PublishChange: marshal: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: ChangeStream(ev.Collection),
		Values: map[string]any{eventField: payload},
	}
	if f.maxLen > 0 {
		args.MaxLen = f.maxLen
		args.Approx = true
	}

	if err := f.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis.ChangeFeed.PublishChange: %w", err)
	}
	return nil
}

// Consume delivers the events of collection to handle until ctx ends. The
// consumer first replays its own pending entries once, then claims stale
// entries of other consumers, then reads new ones. The claim sweep repeats
// every claimEvery.
func (f *ChangeFeed) Consume(ctx context.Context, collection string, handle domain.ChangeHandler) error {
	stream := ChangeStream(collection)
	if err := f.ensureGroup(ctx, stream); err != nil {
		return err
	}

	logger := log.With().Str("stream", stream).Str("group", f.group).Logger()

	f.replayPending(ctx, stream, handle)
	f.claimStale(ctx, stream, handle)
	nextClaim := time.Now().Add(f.claimEvery)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !time.Now().Before(nextClaim) {
			f.claimStale(ctx, stream, handle)
			nextClaim = time.Now().Add(f.claimEvery)
		}

		res, err := f.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    f.group,
			Consumer: f.consumer,
			Streams:  []string{stream, ">"},
			Count:    readCount,
			Block:    f.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Msg("redis: change feed read failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrBackoff):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				f.process(ctx, stream, msg, handle)
			}
		}
	}
}

// replayPending walks this consumer's pending list once, in ID order. Entries
// that fail again are left to the claim sweep.
func (f *ChangeFeed) replayPending(ctx context.Context, stream string, handle domain.ChangeHandler) {
	after := "0"
	for ctx.Err() == nil {
		res, err := f.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    f.group,
			Consumer: f.consumer,
			Streams:  []string{stream, after},
			Count:    readCount,
			Block:    -1,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("stream", stream).Msg("redis: pending replay failed")
			}
			return
		}

		n := 0
		for _, s := range res {
			for _, msg := range s.Messages {
				n++
				f.process(ctx, stream, msg, handle)
				after = msg.ID
			}
		}
		if n == 0 {
			return
		}
	}
}

// claimStale takes over entries pending longer than claimIdle under any
// consumer of the group and processes them.
func (f *ChangeFeed) claimStale(ctx context.Context, stream string, handle domain.ChangeHandler) {
	cursor := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := f.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    f.group,
			Consumer: f.consumer,
			MinIdle:  f.claimIdle,
			Start:    cursor,
			Count:    readCount,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("stream", stream).Msg("redis: claiming stale entries failed")
			}
			return
		}

		if len(msgs) > 0 {
			log.Info().Str("stream", stream).Int("count", len(msgs)).Msg("redis: claimed stale change events")
		}
		for _, msg := range msgs {
			f.process(ctx, stream, msg, handle)
		}

		if next == "" || next == "0-0" {
			return
		}
		cursor = next
	}
}

func (f *ChangeFeed) process(ctx context.Context, stream string, msg redis.XMessage, handle domain.ChangeHandler) {
	logger := log.With().Str("stream", stream).Str("message_id", msg.ID).Logger()

	raw, _ := msg.Values[eventField].(string)

	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		logger.Error().Err(err).Msg("redis: dropping malformed change event")
		f.ack(ctx, stream, msg.ID)
		return
	}

	if err := handle(ctx, ev); err != nil {
		logger.Error().Err(err).Msg("redis: change handler failed, leaving event pending")
		return
	}

	f.ack(ctx, stream, msg.ID)
}

// ack outlives cancellation of ctx so a handled event is not left pending
// just because shutdown began.
func (f *ChangeFeed) ack(ctx context.Context, stream, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := f.client.XAck(ctx, stream, f.group, id).Err(); err != nil {
		log.Warn().Err(err).Str("stream", stream).Str("message_id", id).Msg("redis: ack failed")
	}
}

func (f *ChangeFeed) ensureGroup(ctx context.Context, stream string) error {
	err := f.client.XGroupCreateMkStream(ctx, stream, f.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis.ChangeFeed.ensureGroup: %w", err)
	}
	return nil
}
