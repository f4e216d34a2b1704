package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/relay"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases host", in: "wss://Relay.Example.com", want: "wss://relay.example.com"},
		{name: "trims trailing slash", in: "wss://relay.example.com/", want: "wss://relay.example.com"},
		{name: "leaves path intact", in: "wss://relay.example.com/path", want: "wss://relay.example.com/path"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNextBackoffGrowsAndClamps(t *testing.T) {
	t.Parallel()

	d := minResubscribeInterval
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	assert.Equal(t, maxResubscribeInterval, d)
}

func TestSleepOrDoneReturnsFalseOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepOrDone(ctx, time.Second))
}

func TestSleepOrDoneReturnsTrueAfterDelay(t *testing.T) {
	t.Parallel()

	assert.True(t, sleepOrDone(context.Background(), time.Millisecond))
}

func TestSubscribeRegistersAndUnsubscribeRemoves(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	id, err := p.Subscribe(nil, relay.FilterOptions{})
	assert.NoError(t, err)

	_, ok := p.subscriptions.Load(id)
	assert.True(t, ok, "Subscribe must register the id in the pool's subscription table")

	p.Unsubscribe(id)
	_, ok = p.subscriptions.Load(id)
	assert.False(t, ok, "Unsubscribe must remove the id from the pool's subscription table")
}

func TestUnsubscribeAllClearsRegistry(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	_, err := p.Subscribe(nil, relay.FilterOptions{})
	assert.NoError(t, err)
	_, err = p.Subscribe(nil, relay.FilterOptions{})
	assert.NoError(t, err)

	p.UnsubscribeAll()

	count := 0
	p.subscriptions.Range(func(nostr.SubscriptionID, poolSubscription) bool {
		count++
		return true
	})
	assert.Equal(t, 0, count)
}

func TestSendEventWithNoWriteRelayFails(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	_, err := p.SendEvent(context.Background(), nostr.Event{})
	assert.Error(t, err, "SendEvent must fail fast when no WRITE relay is registered")
}

func TestGetEventsOfWithNoReadRelayFails(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	_, err := p.GetEventsOf(context.Background(), nil)
	assert.Error(t, err, "GetEventsOf must fail fast when no READ relay is registered")
}

func TestRelayOptsByURLKeyedByNormalizedURL(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	p.relayOptsByURL.Store(NormalizeURL("wss://relay.example.com/"), []relay.Option{relay.WithFlags(relay.FlagRead)})
	opts, ok := p.relayOptsByURL.Load("wss://relay.example.com")
	assert.True(t, ok)
	assert.Len(t, opts, 1)
}
