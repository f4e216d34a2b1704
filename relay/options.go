package relay

import (
	"net/url"
	"sync/atomic"
	"time"
)

// Retry/backoff tuning, matched to the values the reference client
// wallet exposes as knobs on its own relay options.
const (
	DefaultRetrySec    = 10
	MinRetrySec        = 5
	MaxAdjRetrySec     = 60
	DefaultSendTimeout = 10 * time.Second
)

// ServiceFlags governs whether a relay is used for reads, writes, or
// both, mirroring a connection's advertised role in the pool.
type ServiceFlags uint32

const (
	FlagRead ServiceFlags = 1 << iota
	FlagWrite
)

// AtomicServiceFlags is a live-updatable bitset: flipping a flag while
// a relay is mid-operation takes effect on the next use without
// requiring a new Relay value.
type AtomicServiceFlags struct {
	bits atomic.Uint32
}

// NewAtomicServiceFlags creates a bitset initialized to flags.
func NewAtomicServiceFlags(flags ServiceFlags) *AtomicServiceFlags {
	a := &AtomicServiceFlags{}
	a.bits.Store(uint32(flags))
	return a
}

func (a *AtomicServiceFlags) Load() ServiceFlags { return ServiceFlags(a.bits.Load()) }

func (a *AtomicServiceFlags) Has(flag ServiceFlags) bool {
	return ServiceFlags(a.bits.Load())&flag != 0
}

func (a *AtomicServiceFlags) Add(flag ServiceFlags) {
	for {
		old := a.bits.Load()
		if a.bits.CompareAndSwap(old, old|uint32(flag)) {
			return
		}
	}
}

func (a *AtomicServiceFlags) Remove(flag ServiceFlags) {
	for {
		old := a.bits.Load()
		if a.bits.CompareAndSwap(old, old&^uint32(flag)) {
			return
		}
	}
}

// Options configures a single relay connection's behavior: its proxy,
// service flags and reconnect policy. Scalar fields that can be
// live-updated while a connection is running are backed by atomics;
// the rest is set once at construction via Option.
type Options struct {
	Proxy *url.URL
	Flags *AtomicServiceFlags

	reconnect      atomic.Bool
	retrySec       atomic.Uint64
	adjustRetrySec atomic.Bool
}

// NewOptions returns the default Options: read+write, auto-reconnect
// enabled, 10s retry with adjustment.
func NewOptions() *Options {
	o := &Options{Flags: NewAtomicServiceFlags(FlagRead | FlagWrite)}
	o.reconnect.Store(true)
	o.retrySec.Store(DefaultRetrySec)
	o.adjustRetrySec.Store(true)
	return o
}

func (o *Options) Reconnect() bool      { return o.reconnect.Load() }
func (o *Options) SetReconnect(v bool)  { o.reconnect.Store(v) }
func (o *Options) AdjustRetrySec() bool { return o.adjustRetrySec.Load() }
func (o *Options) SetAdjustRetrySec(v bool) {
	o.adjustRetrySec.Store(v)
}

func (o *Options) RetrySec() uint64 { return o.retrySec.Load() }

// SetRetrySec updates the retry delay, silently replacing any value
// below MinRetrySec with DefaultRetrySec rather than accepting a value
// that could spin the reconnect loop.
func (o *Options) SetRetrySec(sec uint64) {
	if sec < MinRetrySec {
		sec = DefaultRetrySec
	}
	o.retrySec.Store(sec)
}

// Option mutates a freshly constructed Options value. It follows the
// single func-type pattern rather than the interface-with-Apply
// pattern used by pool.Option, since per-relay options never need to
// be grouped or composed across packages.
type Option func(*Options)

func WithProxy(proxy *url.URL) Option {
	return func(o *Options) { o.Proxy = proxy }
}

func WithFlags(flags ServiceFlags) Option {
	return func(o *Options) { o.Flags = NewAtomicServiceFlags(flags) }
}

func WithReconnect(reconnect bool) Option {
	return func(o *Options) { o.reconnect.Store(reconnect) }
}

func WithRetrySec(sec uint64) Option {
	return func(o *Options) { o.SetRetrySec(sec) }
}

func WithAdjustRetrySec(adjust bool) Option {
	return func(o *Options) { o.adjustRetrySec.Store(adjust) }
}

// NewOptionsFrom applies opts over the defaults from NewOptions.
func NewOptionsFrom(opts ...Option) *Options {
	o := NewOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendOptions governs a single publish: whether to skip the round
// trip entirely when the relay is down, and how long to wait for the
// OK acknowledgment.
type SendOptions struct {
	SkipDisconnected bool
	Timeout          time.Duration
}

// NewSendOptions returns the default SendOptions: skip when
// disconnected, 10s ack timeout.
func NewSendOptions() SendOptions {
	return SendOptions{SkipDisconnected: true, Timeout: DefaultSendTimeout}
}

type SendOption func(*SendOptions)

func WithSkipDisconnected(v bool) SendOption {
	return func(o *SendOptions) { o.SkipDisconnected = v }
}

func WithSendTimeout(d time.Duration) SendOption {
	return func(o *SendOptions) {
		if d <= 0 {
			d = DefaultSendTimeout
		}
		o.Timeout = d
	}
}

func NewSendOptionsFrom(opts ...SendOption) SendOptions {
	o := NewSendOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FilterOptions governs when a one-shot historical query auto-closes
// relative to EOSE.
type FilterOptions struct {
	kind              filterOptionsKind
	eventsAfterEOSE   int
	durationAfterEOSE time.Duration
}

type filterOptionsKind int

const (
	// NoAutoClose never closes the subscription on EOSE; it runs
	// until the caller calls Unsub or its context ends. This is the
	// zero value, matching a long-lived live subscription's default.
	NoAutoClose filterOptionsKind = iota
	ExitOnEOSE
	WaitForEventsAfterEOSE
	WaitDurationAfterEOSE
)

// NewExitOnEOSE closes the subscription as soon as the first EOSE is
// received.
func NewExitOnEOSE() FilterOptions { return FilterOptions{kind: ExitOnEOSE} }

// NewWaitForEventsAfterEOSE closes the subscription after n further
// matching events have been delivered past EOSE.
func NewWaitForEventsAfterEOSE(n int) FilterOptions {
	return FilterOptions{kind: WaitForEventsAfterEOSE, eventsAfterEOSE: n}
}

// NewWaitDurationAfterEOSE closes the subscription d after EOSE.
func NewWaitDurationAfterEOSE(d time.Duration) FilterOptions {
	return FilterOptions{kind: WaitDurationAfterEOSE, durationAfterEOSE: d}
}

func (f FilterOptions) Kind() filterOptionsKind          { return f.kind }
func (f FilterOptions) EventsAfterEOSE() int             { return f.eventsAfterEOSE }
func (f FilterOptions) DurationAfterEOSE() time.Duration { return f.durationAfterEOSE }
