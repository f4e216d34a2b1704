package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmogo/nostrpool/nostr"
)

// TestMarkDisconnectedPreservesSubscription exercises the invariant
// that a disconnect (without an explicit Unsubscribe) must not drop a
// subscription from the client's table: resubscribeAll walks that
// table on every reconnect to replay open REQs.
func TestMarkDisconnectedPreservesSubscription(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	id, err := nostr.NewSubscriptionID()
	require.NoError(t, err)

	filters := []nostr.Filter{nostr.NewFilter().WithKind(nostr.KindTextNote)}
	sub := newSubscription(c.lifeCtx, c, id, filters, FilterOptions{})
	c.subscriptions.Store(id, sub)

	sub.markDisconnected()

	_, ok := c.subscriptions.Load(id)
	assert.True(t, ok, "subscription must remain registered across a disconnect")
	assert.False(t, sub.live.Load())

	// A reconnect's resubscribeAll calls Fire again, which should be
	// able to flip the subscription back to live without the caller
	// having recreated it.
	sub.live.Store(true)
	assert.True(t, sub.live.Load())
}

// TestWaitForEventsAfterEOSEIgnoresBacklog confirms that events
// delivered before EOSE don't count toward WaitForEventsAfterEOSE's
// threshold: only events arriving after EOSE should.
func TestWaitForEventsAfterEOSEIgnoresBacklog(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	id, err := nostr.NewSubscriptionID()
	require.NoError(t, err)

	sub := newSubscription(c.lifeCtx, c, id, nil, NewWaitForEventsAfterEOSE(1))
	c.subscriptions.Store(id, sub)
	// Stand in for Fire, which is what marks a subscription live.
	sub.live.Store(true)

	// Drain three backlog events before EOSE; none should count.
	go func() {
		for i := 0; i < 3; i++ {
			<-sub.Events
		}
	}()
	for i := 0; i < 3; i++ {
		sub.dispatchEvent(nostr.Event{})
	}
	assert.Equal(t, int64(0), sub.receivedSinceEOSE.Load())

	sub.dispatchEose()
	<-sub.EndOfStoredEvents
	assert.True(t, sub.live.Load(), "subscription must stay open until a post-EOSE event actually arrives")
}

// TestUnsubRemovesSubscription confirms the explicit-close path still
// tears the subscription out of the table, unlike a bare disconnect.
func TestUnsubRemovesSubscription(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	id, err := nostr.NewSubscriptionID()
	require.NoError(t, err)

	sub := newSubscription(c.lifeCtx, c, id, nil, FilterOptions{})
	c.subscriptions.Store(id, sub)

	sub.Unsub()

	_, ok := c.subscriptions.Load(id)
	assert.False(t, ok, "explicit unsubscribe must remove the subscription")
}
