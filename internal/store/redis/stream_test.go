package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/praxis/internal/domain"
)

func newFeed(t *testing.T) (*ChangeFeed, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return feedFor(client, "test-1"), client
}

// feedFor returns a feed on client reading as consumer. The claim sweep is
// pushed out of reach; tests that need it shorten it explicitly.
func feedFor(client *redis.Client, consumer string) *ChangeFeed {
	f := NewChangeFeed(NewWithClient(client), "praxis-audit", consumer, 1000)
	f.block = 50 * time.Millisecond
	f.claimIdle = time.Hour
	f.claimEvery = time.Hour
	return f
}

// collector records delivered events; fail makes the handler reject them.
type collector struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	fail   bool
}

func (c *collector) handle(_ context.Context, ev domain.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if c.fail {
		return errors.New("handler failed")
	}
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func consume(t *testing.T, f *ChangeFeed, collection string, c *collector, until func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Consume(ctx, collection, c.handle) }()

	require.Eventually(t, until, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func pending(t *testing.T, client *redis.Client, collection string) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), ChangeStream(collection), "praxis-audit").Result()
	require.NoError(t, err)
	return p.Count
}

func TestChangeFeed_PublishAndConsume(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	// Published before the group exists: still delivered.
	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1",
		After: domain.Snapshot{"nome": "Mario"},
	}))
	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1",
		Before: domain.Snapshot{"nome": "Mario"},
		After:  domain.Snapshot{"nome": "Luigi"},
	}))
	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "documenti", DocumentID: "d1",
		After: domain.Snapshot{"titolo": "T"},
	}))

	c := &collector{}
	consume(t, f, "utenti", c, func() bool { return c.count() == 2 })

	require.Len(t, c.events, 2)
	assert.Nil(t, c.events[0].Before)
	assert.Equal(t, "Mario", c.events[0].After["nome"])
	assert.Equal(t, "Luigi", c.events[1].After["nome"])
	assert.Zero(t, pending(t, client, "utenti"))
}

func TestChangeFeed_RedeliversUnacknowledged(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1", After: domain.Snapshot{"nome": "Mario"},
	}))

	failing := &collector{fail: true}
	consume(t, f, "utenti", failing, func() bool { return failing.count() == 1 })
	assert.Equal(t, int64(1), pending(t, client, "utenti"))

	ok := &collector{}
	consume(t, f, "utenti", ok, func() bool { return ok.count() == 1 })
	assert.Equal(t, "u1", ok.events[0].DocumentID)
	assert.Zero(t, pending(t, client, "utenti"))
}

func TestChangeFeed_ClaimsEntriesOfVanishedConsumer(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1", After: domain.Snapshot{"nome": "Mario"},
	}))

	failing := &collector{fail: true}
	consume(t, f, "utenti", failing, func() bool { return failing.count() == 1 })
	require.Equal(t, int64(1), pending(t, client, "utenti"))

	// A restarted process comes back under a new consumer name.
	restarted := feedFor(client, "test-2")
	restarted.claimIdle = 10 * time.Millisecond
	restarted.claimEvery = 20 * time.Millisecond

	ok := &collector{}
	consume(t, restarted, "utenti", ok, func() bool { return ok.count() == 1 })

	assert.Equal(t, "u1", ok.events[0].DocumentID)
	assert.Zero(t, pending(t, client, "utenti"))
}

func TestChangeFeed_ReplayPassRunsOnce(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1", After: domain.Snapshot{"nome": "Mario"},
	}))

	failing := &collector{fail: true}
	consume(t, f, "utenti", failing, func() bool { return failing.count() == 1 })

	// Same consumer, handler still failing: the pending entry is replayed
	// once and then left to the claim sweep.
	again := &collector{fail: true}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Consume(runCtx, "utenti", again.handle) }()

	require.Eventually(t, func() bool { return again.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, again.count())
	assert.Equal(t, int64(1), pending(t, client, "utenti"))
}

func TestChangeFeed_ClaimSweepRetriesOwnFailures(t *testing.T) {
	t.Parallel()

	_, client := newFeed(t)
	f := feedFor(client, "test-1")
	f.claimIdle = 20 * time.Millisecond
	f.claimEvery = 20 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1", After: domain.Snapshot{"nome": "Mario"},
	}))

	c := &collector{fail: true}
	consume(t, f, "utenti", c, func() bool { return c.count() >= 3 })

	// Retries are paced by the sweep, not a tight loop.
	assert.Less(t, c.count(), 50)
	assert.Equal(t, int64(1), pending(t, client, "utenti"))
}

func TestChangeFeed_MalformedPayloadAcked(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: ChangeStream("utenti"),
		Values: map[string]any{eventField: "{not json"},
	}).Err())
	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u2", After: domain.Snapshot{"nome": "X"},
	}))

	c := &collector{}
	consume(t, f, "utenti", c, func() bool { return c.count() == 1 })

	assert.Equal(t, "u2", c.events[0].DocumentID)
	assert.Zero(t, pending(t, client, "utenti"))
}

func TestChangeFeed_EnsureGroupIdempotent(t *testing.T) {
	t.Parallel()

	f, _ := newFeed(t)
	ctx := context.Background()

	require.NoError(t, f.ensureGroup(ctx, ChangeStream("utenti")))
	require.NoError(t, f.ensureGroup(ctx, ChangeStream("utenti")))
}

func TestChangeFeed_AckSurvivesCancellation(t *testing.T) {
	t.Parallel()

	f, client := newFeed(t)
	ctx := context.Background()

	require.NoError(t, f.PublishChange(ctx, domain.ChangeEvent{
		Collection: "utenti", DocumentID: "u1", After: domain.Snapshot{"nome": "Mario"},
	}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	// Shutdown starts while the event is being handled.
	go func() {
		done <- f.Consume(runCtx, "utenti", func(context.Context, domain.ChangeEvent) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Zero(t, pending(t, client, "utenti"))
}
