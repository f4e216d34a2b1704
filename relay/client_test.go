package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayClampsToMax(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	c.opts.SetRetrySec(10)
	c.attempts = 100

	assert.Equal(t, time.Duration(MaxAdjRetrySec)*time.Second, c.backoffDelay())
}

func TestBackoffDelayWithoutAdjustment(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	c.opts.SetAdjustRetrySec(false)
	c.opts.SetRetrySec(20)
	c.attempts = 5

	assert.Equal(t, 20*time.Second, c.backoffDelay())
}

func TestAtomicStatusTransitions(t *testing.T) {
	t.Parallel()

	var s AtomicStatus
	s.Store(StatusInitialized)
	assert.True(t, s.Is(StatusInitialized))

	assert.True(t, s.CompareAndSwap(StatusInitialized, StatusConnecting))
	assert.True(t, s.Is(StatusConnecting))
	assert.False(t, s.CompareAndSwap(StatusInitialized, StatusConnected))
}

func TestClientStatusDefaultsToInitialized(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	assert.Equal(t, StatusInitialized, c.Status())
}

func TestDisconnectTransitionsToStopped(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	c.status.Store(StatusConnected)

	c.Disconnect()

	assert.Equal(t, StatusStopped, c.Status())
}

func TestDisconnectDoesNotOverrideTerminated(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	c.status.Store(StatusTerminated)

	c.Disconnect()

	assert.Equal(t, StatusTerminated, c.Status())
}

func TestHandleFrameAuthChallengeUpdatesChallengeAndChannel(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), "wss://example.com")
	c.handleFrame([]byte(`["AUTH","please-prove-it"]`))

	assert.Equal(t, "please-prove-it", c.Challenge())
	select {
	case got := <-c.AuthChallenges():
		assert.Equal(t, "please-prove-it", got)
	default:
		t.Fatal("expected a buffered auth challenge")
	}
}
