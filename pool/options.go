package pool

import (
	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/relay"
)

// Option configures a Pool at construction time. It follows the
// interface-with-Apply pattern (rather than relay.Option's bare func
// type) because pool options are richer and sometimes need their own
// exported type for documentation, e.g. WithAuthHandler.
type Option interface {
	ApplyPoolOption(*Pool)
}

// WithRelayOptions supplies the relay.Option set every relay.Client
// the pool creates via EnsureRelay is constructed with.
func WithRelayOptions(opts ...relay.Option) Option {
	return withRelayOptions(opts)
}

type withRelayOptions []relay.Option

func (o withRelayOptions) ApplyPoolOption(p *Pool) { p.relayOpts = append(p.relayOpts, o...) }

// AuthHandler signs and returns the kind 22242 AUTH event answering
// challenge for the given relay URL.
type AuthHandler func(relayURL, challenge string) (nostr.Event, error)

// WithAuthHandler installs an AuthHandler the pool invokes whenever a
// relay connection surfaces a NIP-42 challenge.
func WithAuthHandler(h AuthHandler) Option {
	return withAuthHandler(h)
}

type withAuthHandler AuthHandler

func (h withAuthHandler) ApplyPoolOption(p *Pool) { p.authHandler = AuthHandler(h) }

// EventMiddleware inspects (and may veto) every event the pool is
// about to forward to subscribers, across all relays.
type EventMiddleware func(relayURL string, evt nostr.Event) bool

// WithEventMiddleware installs an EventMiddleware; only events for
// which every installed middleware returns true are dispatched.
func WithEventMiddleware(mw EventMiddleware) Option {
	return withEventMiddleware(mw)
}

type withEventMiddleware EventMiddleware

func (h withEventMiddleware) ApplyPoolOption(p *Pool) {
	p.eventMiddleware = append(p.eventMiddleware, EventMiddleware(h))
}

// WithNotificationChannelSize overrides the pool's notification bus
// buffer depth (default defaultNotificationChannelSize). Past this
// depth the oldest pending notifications are dropped rather than
// blocking relay goroutines.
func WithNotificationChannelSize(n int) Option {
	return withNotificationChannelSize(n)
}

type withNotificationChannelSize int

func (n withNotificationChannelSize) ApplyPoolOption(p *Pool) {
	if n > 0 {
		p.notificationChannelSize = int(n)
	}
}

// WithShutdownOnDrop records whether an implicit drop of the pool
// handle (as opposed to an explicit Close call) should terminate every
// relay connection. Default false. Go has no destructor hook to act on
// an implicit drop, so this field has no observable effect yet: Close
// always terminates every relay regardless of it; the option exists
// for parity with the spec's table entry.
func WithShutdownOnDrop(v bool) Option {
	return withShutdownOnDrop(v)
}

type withShutdownOnDrop bool

func (v withShutdownOnDrop) ApplyPoolOption(p *Pool) { p.shutdownOnDrop = bool(v) }

// WithTaskChannelSize overrides the depth of the pool's internal task
// semaphore (default defaultTaskChannelSize), which bounds how many
// short-lived fan-out operations (Publish, FetchMany) the coordinator
// runs against relays concurrently.
func WithTaskChannelSize(n int) Option {
	return withTaskChannelSize(n)
}

type withTaskChannelSize int

func (n withTaskChannelSize) ApplyPoolOption(p *Pool) {
	if n > 0 {
		p.taskChannelSize = int(n)
	}
}

var (
	_ Option = withRelayOptions(nil)
	_ Option = withAuthHandler(nil)
	_ Option = withEventMiddleware(nil)
	_ Option = withNotificationChannelSize(0)
	_ Option = withShutdownOnDrop(false)
	_ Option = withTaskChannelSize(0)
)
