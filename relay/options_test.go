package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()

	o := NewOptions()
	assert.True(t, o.Reconnect())
	assert.True(t, o.AdjustRetrySec())
	assert.Equal(t, uint64(DefaultRetrySec), o.RetrySec())
	assert.True(t, o.Flags.Has(FlagRead))
	assert.True(t, o.Flags.Has(FlagWrite))
}

func TestSetRetrySecResetsBelowMinimumToDefault(t *testing.T) {
	t.Parallel()

	o := NewOptions()
	o.SetRetrySec(1)
	assert.Equal(t, uint64(DefaultRetrySec), o.RetrySec())

	o.SetRetrySec(MinRetrySec)
	assert.Equal(t, uint64(MinRetrySec), o.RetrySec())
}

func TestAtomicServiceFlags(t *testing.T) {
	t.Parallel()

	flags := NewAtomicServiceFlags(FlagRead)
	assert.True(t, flags.Has(FlagRead))
	assert.False(t, flags.Has(FlagWrite))

	flags.Add(FlagWrite)
	assert.True(t, flags.Has(FlagWrite))

	flags.Remove(FlagRead)
	assert.False(t, flags.Has(FlagRead))
}

func TestNewOptionsFromApplies(t *testing.T) {
	t.Parallel()

	o := NewOptionsFrom(WithReconnect(false), WithRetrySec(30), WithFlags(FlagWrite))
	assert.False(t, o.Reconnect())
	assert.Equal(t, uint64(30), o.RetrySec())
	assert.True(t, o.Flags.Has(FlagWrite))
	assert.False(t, o.Flags.Has(FlagRead))
}

func TestSendOptionsDefaults(t *testing.T) {
	t.Parallel()

	so := NewSendOptionsFrom()
	assert.True(t, so.SkipDisconnected)
	assert.Equal(t, DefaultSendTimeout, so.Timeout)
}

func TestFilterOptionsKinds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOnEOSE, NewExitOnEOSE().Kind())
	assert.Equal(t, 5, NewWaitForEventsAfterEOSE(5).EventsAfterEOSE())

	var zero FilterOptions
	assert.Equal(t, NoAutoClose, zero.Kind())
}
