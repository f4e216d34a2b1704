// Package pool coordinates a fleet of relay.Client connections: it
// fans a single client request out across many relays, merges and
// deduplicates the inbound results, and exposes one notification bus
// so callers can observe raw relay traffic alongside merged results.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/asmogo/nostrpool/negentropy"
	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/nostrerr"
	"github.com/asmogo/nostrpool/relay"
)

const seenAlreadyDropTick = time.Minute

// RelayEvent pairs an inbound event with the relay URL it arrived
// from, the pool's unit of fan-in.
type RelayEvent struct {
	Relay string
	Event nostr.Event
}

// Pool owns a set of relay connections and the subscriptions fanned
// out across them. The zero value is not usable; construct with New.
type Pool struct {
	// id correlates this pool's log lines across every relay goroutine
	// it owns, the way a request id threads through a server's logs.
	id uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	relays         *xsync.MapOf[string, *relay.Client]
	relayOpts      []relay.Option
	relayOptsByURL *xsync.MapOf[string, []relay.Option]

	// subscriptions is the authoritative client-side registry: every
	// id Subscribe/SubscribeWithID hands out stays here until an
	// explicit Unsubscribe, and is replayed onto any relay added after
	// the fact by AddRelay.
	subscriptions *xsync.MapOf[nostr.SubscriptionID, poolSubscription]

	authHandler     AuthHandler
	eventMiddleware []EventMiddleware

	notificationChannelSize int
	taskChannelSize         int
	shutdownOnDrop          bool

	notifications chan Notification
	// taskSem bounds how many short-lived fan-out operations (Publish,
	// FetchMany) run against relays concurrently, the pool's analogue
	// of the spec's task_channel_size-bounded coordinator queue.
	taskSem chan struct{}

	notifyMu     sync.RWMutex
	notifyClosed bool
	closeOnce    sync.Once
}

type poolSubscription struct {
	filters []nostr.Filter
	opts    relay.FilterOptions
}

// New constructs a Pool bound to parent's lifetime; cancelling parent
// (or calling Close) tears down every relay connection the pool owns.
func New(parent context.Context, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		id:                      uuid.New(),
		ctx:                     ctx,
		cancel:                  cancel,
		relays:                  xsync.NewMapOf[string, *relay.Client](),
		relayOptsByURL:          xsync.NewMapOf[string, []relay.Option](),
		subscriptions:           xsync.NewMapOf[nostr.SubscriptionID, poolSubscription](),
		notificationChannelSize: defaultNotificationChannelSize,
		taskChannelSize:         defaultTaskChannelSize,
	}
	for _, opt := range opts {
		opt.ApplyPoolOption(p)
	}
	p.notifications = make(chan Notification, p.notificationChannelSize)
	p.taskSem = make(chan struct{}, p.taskChannelSize)
	return p
}

// acquireTask blocks until a task slot is free, bounding the number of
// fan-out operations the pool runs against relays at once.
func (p *Pool) acquireTask(ctx context.Context) bool {
	select {
	case p.taskSem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) releaseTask() { <-p.taskSem }

// NormalizeURL lowercases the scheme/host of a relay URL and trims a
// trailing slash, so "wss://Relay.Example.com/" and
// "wss://relay.example.com" are treated as the same relay.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// EnsureRelay returns the pool's connection to url, dialing and
// registering a new one if none exists yet or the existing one is no
// longer connected. It uses whatever relay.Option set was registered
// for url via AddRelay, falling back to the pool-wide default from
// WithRelayOptions.
func (p *Pool) EnsureRelay(url string) (*relay.Client, error) {
	nm := NormalizeURL(url)
	if existing, ok := p.relays.Load(nm); ok && existing.Status() == relay.StatusConnected {
		return existing, nil
	}

	opts := p.relayOpts
	if custom, ok := p.relayOptsByURL.Load(nm); ok {
		opts = custom
	}
	client := relay.New(p.ctx, nm, opts...)
	dialCtx, cancel := context.WithTimeout(p.ctx, 15*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		slog.Warn("ensure relay failed", "pool", p.id, "relay", nm, "err", err)
		return nil, nostrerr.WithRelay(nostrerr.Transport, nm, err.Error())
	}
	p.relays.Store(nm, client)
	// client is already Connected from the dial above; RunWithReconnect
	// checks Status() before dialing, so it picks up this same
	// connection generation instead of opening a second socket.
	go client.RunWithReconnect(p.ctx)
	go p.pumpNotices(nm, client)
	go p.pumpAuth(nm, client)
	p.replaySubscriptions(client)
	return client, nil
}

// AddRelay registers url with the pool (idempotent) and connects to
// it immediately, honoring opts for this relay specifically. Every
// subscription already open on the pool is replayed onto it once
// connected.
func (p *Pool) AddRelay(url string, opts ...relay.Option) (*relay.Client, error) {
	nm := NormalizeURL(url)
	p.relayOptsByURL.Store(nm, opts)
	return p.EnsureRelay(nm)
}

// RemoveRelay closes the pool's connection to url, if any, and
// forgets its registered options. It is idempotent on URL.
func (p *Pool) RemoveRelay(url string) {
	nm := NormalizeURL(url)
	if client, ok := p.relays.LoadAndDelete(nm); ok {
		client.Close()
	}
	p.relayOptsByURL.Delete(nm)
}

// Relays returns the normalized URLs of every relay currently
// registered with the pool.
func (p *Pool) Relays() []string {
	urls := make([]string, 0, p.relays.Size())
	p.relays.Range(func(u string, _ *relay.Client) bool {
		urls = append(urls, u)
		return true
	})
	return urls
}

func (p *Pool) replaySubscriptions(client *relay.Client) {
	if !client.Flags().Has(relay.FlagRead) {
		return
	}
	p.subscriptions.Range(func(id nostr.SubscriptionID, sub poolSubscription) bool {
		go p.forwardPersistentSub(client, id, sub.filters, sub.opts)
		return true
	})
}

// Subscribe allocates a fresh SubscriptionID, stores filters in the
// pool's subscription registry, and forwards the REQ to every relay
// whose service flags include READ. The registry entry persists until
// Unsubscribe or UnsubscribeAll regardless of individual relay
// disconnects.
func (p *Pool) Subscribe(filters []nostr.Filter, opts relay.FilterOptions) (nostr.SubscriptionID, error) {
	id, err := nostr.NewSubscriptionID()
	if err != nil {
		return "", nostrerr.Wrap(nostrerr.InvalidInput, "generate subscription id", err)
	}
	return id, p.SubscribeWithID(id, filters, opts)
}

// SubscribeWithID is Subscribe with a caller-chosen id.
func (p *Pool) SubscribeWithID(id nostr.SubscriptionID, filters []nostr.Filter, opts relay.FilterOptions) error {
	p.subscriptions.Store(id, poolSubscription{filters: filters, opts: opts})
	p.relays.Range(func(_ string, client *relay.Client) bool {
		if client.Flags().Has(relay.FlagRead) {
			go p.forwardPersistentSub(client, id, filters, opts)
		}
		return true
	})
	return nil
}

// forwardPersistentSub opens id on client and relays every event it
// delivers onto the pool's notification bus until the subscription's
// Events channel closes (relay torn down for good) or the pool itself
// shuts down.
func (p *Pool) forwardPersistentSub(client *relay.Client, id nostr.SubscriptionID, filters []nostr.Filter, opts relay.FilterOptions) {
	sub, err := client.SubscribeWithID(p.ctx, id, filters, opts)
	if err != nil {
		slog.Warn("subscribe failed", "pool", p.id, "relay", client.URL, "sub", id, "err", err)
		p.notify(Notification{Kind: NotifyNotice, Relay: client.URL, Notice: fmt.Sprintf("subscribe failed: %v", err)})
		return
	}
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if !p.passesMiddleware(client.URL, evt) {
				continue
			}
			p.notify(Notification{Kind: NotifyEvent, Relay: client.URL, SubscriptionID: id, Event: evt})
		case <-p.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes id from the pool's registry and closes it on
// every relay currently holding it open.
func (p *Pool) Unsubscribe(id nostr.SubscriptionID) {
	p.subscriptions.Delete(id)
	p.relays.Range(func(_ string, client *relay.Client) bool {
		client.Unsubscribe(id)
		return true
	})
}

// UnsubscribeAll closes every subscription the pool's registry knows
// about.
func (p *Pool) UnsubscribeAll() {
	var ids []nostr.SubscriptionID
	p.subscriptions.Range(func(id nostr.SubscriptionID, _ poolSubscription) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		p.Unsubscribe(id)
	}
}

// pumpNotices forwards client's NOTICE messages onto the pool's
// notification bus until the pool itself shuts down. client.Notices()
// is documented as never closing even once the relay is terminated, so
// this selects on p.ctx.Done() rather than ranging over it directly;
// otherwise the goroutine would outlive every relay it was started
// for.
func (p *Pool) pumpNotices(relayURL string, client *relay.Client) {
	for {
		select {
		case notice := <-client.Notices():
			p.notify(Notification{Kind: NotifyNotice, Relay: relayURL, Notice: notice})
		case <-p.ctx.Done():
			return
		}
	}
}

// pumpAuth reacts to every NIP-42 AUTH challenge client surfaces: if an
// AuthHandler is installed, it builds the signed response event and
// sends it back on the same connection; either way the challenge is
// also broadcast on the notification bus so a caller with no
// AuthHandler installed can still observe and answer it manually.
func (p *Pool) pumpAuth(relayURL string, client *relay.Client) {
	for {
		var challenge string
		select {
		case challenge = <-client.AuthChallenges():
		case <-p.ctx.Done():
			return
		}
		p.notify(Notification{Kind: NotifyAuth, Relay: relayURL, Challenge: challenge})
		if p.authHandler == nil {
			continue
		}
		evt, err := p.authHandler(relayURL, challenge)
		if err != nil {
			slog.Warn("auth handler failed", "pool", p.id, "relay", relayURL, "err", err)
			continue
		}
		if err := client.SendAuthEvent(p.ctx, evt); err != nil {
			slog.Warn("send auth event failed", "pool", p.id, "relay", relayURL, "err", err)
		}
	}
}

// SubscribeMany opens filters on every url, merging inbound events
// into one channel deduplicated by EventID. The channel closes when
// ctx is done and every per-relay subscription has unwound.
func (p *Pool) SubscribeMany(ctx context.Context, urls []string, filters []nostr.Filter) (<-chan RelayEvent, error) {
	return p.subMany(ctx, urls, filters, true)
}

// SubscribeManyNonUnique is like SubscribeMany but forwards every
// relay's copy of a duplicated event instead of dropping repeats.
func (p *Pool) SubscribeManyNonUnique(ctx context.Context, urls []string, filters []nostr.Filter) (<-chan RelayEvent, error) {
	return p.subMany(ctx, urls, filters, false)
}

func (p *Pool) subMany(ctx context.Context, urls []string, filters []nostr.Filter, unique bool) (<-chan RelayEvent, error) {
	out := make(chan RelayEvent)
	seenAlready := xsync.NewMapOf[nostr.EventID, nostr.Timestamp]()
	ticker := time.NewTicker(seenAlreadyDropTick)

	pending := xsync.NewCounter()
	pending.Add(int64(len(urls)))

	started := 0
	for _, u := range urls {
		client, err := p.EnsureRelay(u)
		if err != nil {
			pending.Dec()
			p.notify(Notification{Kind: NotifyNotice, Relay: u, Notice: fmt.Sprintf("ensure relay failed: %v", err)})
			continue
		}
		started++
		go p.runRelaySub(ctx, client, filters, unique, seenAlready, out, pending, ticker)
	}
	if started == 0 {
		close(out)
		ticker.Stop()
		return out, nostrerr.New(nostrerr.Transport, "no relay could be reached")
	}

	go func() {
		<-ctx.Done()
		// runRelaySub goroutines observe ctx.Done via their
		// subscription and unwind on their own; this goroutine only
		// owns the ticker's lifetime.
		ticker.Stop()
	}()

	return out, nil
}

const minResubscribeInterval = 3 * time.Second
const maxResubscribeInterval = 30 * time.Second

// runRelaySub owns one relay's side of a fanned-out subscription for
// the life of ctx. A relay.Client only carries a subscription across
// its own reconnects on a best-effort basis, so when sub.Events closes
// from underneath us (the underlying connection dropped) this re-opens
// the REQ from scratch rather than giving up, narrowing filters to
// events seen from now on so a slow relay doesn't replay its backlog.
func (p *Pool) runRelaySub(
	ctx context.Context,
	client *relay.Client,
	filters []nostr.Filter,
	unique bool,
	seenAlready *xsync.MapOf[nostr.EventID, nostr.Timestamp],
	out chan RelayEvent,
	pending *xsync.Counter,
	ticker *time.Ticker,
) {
	defer func() {
		pending.Dec()
		if pending.Value() == 0 {
			close(out)
		}
	}()

	interval := minResubscribeInterval
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub, err := client.Subscribe(ctx, filters, relay.FilterOptions{})
		if err != nil {
			if !sleepOrDone(ctx, interval) {
				return
			}
			interval = nextBackoff(interval)
			continue
		}
		interval = minResubscribeInterval

		if p.drainSubscription(ctx, client, sub, unique, seenAlready, out, ticker) {
			return
		}

		now := nostr.Now()
		for i := range filters {
			filters[i].Since = &now
		}
	}
}

// drainSubscription forwards sub's events to out until ctx ends (true)
// or the subscription's Events channel closes out from under it,
// meaning the connection dropped and the caller should resubscribe
// (false).
func (p *Pool) drainSubscription(
	ctx context.Context,
	client *relay.Client,
	sub *relay.Subscription,
	unique bool,
	seenAlready *xsync.MapOf[nostr.EventID, nostr.Timestamp],
	out chan RelayEvent,
	ticker *time.Ticker,
) bool {
	defer sub.Unsub()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			cutoff := nostr.Now() - nostr.Timestamp(seenAlreadyDropTick/time.Second)
			seenAlready.Range(func(id nostr.EventID, seenAt nostr.Timestamp) bool {
				if seenAt < cutoff {
					seenAlready.Delete(id)
				}
				return true
			})
		case evt, ok := <-sub.Events:
			if !ok {
				return false
			}
			if !p.passesMiddleware(client.URL, evt) {
				continue
			}
			p.notify(Notification{Kind: NotifyEvent, Relay: client.URL, SubscriptionID: sub.ID, Event: evt})
			if unique {
				if _, dup := seenAlready.LoadOrStore(evt.ID, evt.CreatedAt); dup {
					continue
				}
			}
			select {
			case out <- RelayEvent{Relay: client.URL, Event: evt}:
			case <-ctx.Done():
				return true
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 17 / 10
	if next > maxResubscribeInterval {
		return maxResubscribeInterval
	}
	return next
}

func (p *Pool) passesMiddleware(relayURL string, evt nostr.Event) bool {
	for _, mw := range p.eventMiddleware {
		if !mw(relayURL, evt) {
			return false
		}
	}
	return true
}

// QuerySingle returns the first event url sends matching filters, or
// nil if none arrives before EOSE or timeout.
func (p *Pool) QuerySingle(ctx context.Context, relayURL string, filters []nostr.Filter) (*nostr.Event, error) {
	client, err := p.EnsureRelay(relayURL)
	if err != nil {
		return nil, err
	}
	events, err := client.QueryEvents(ctx, filters)
	if err != nil {
		return nil, err
	}
	for _, evt := range events {
		p.notify(Notification{Kind: NotifyEvent, Relay: client.URL, Event: evt})
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// FetchMany runs a one-shot query on every url, merges inbound events
// deduplicated by EventID, and returns once every relay has sent EOSE
// or ctx is done, whichever comes first.
func (p *Pool) FetchMany(ctx context.Context, urls []string, filters []nostr.Filter) ([]nostr.Event, error) {
	seen := xsync.NewMapOf[nostr.EventID, struct{}]()
	var mu sync.Mutex
	var merged []nostr.Event

	var wg sync.WaitGroup
	for _, u := range urls {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !p.acquireTask(ctx) {
				return
			}
			defer p.releaseTask()
			client, err := p.EnsureRelay(u)
			if err != nil {
				return
			}
			events, err := client.QueryEvents(ctx, filters)
			if err != nil {
				return
			}
			for _, evt := range events {
				p.notify(Notification{Kind: NotifyEvent, Relay: client.URL, Event: evt})
				if _, dup := seen.LoadOrStore(evt.ID, struct{}{}); dup {
					continue
				}
				mu.Lock()
				merged = append(merged, evt)
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return merged, nil
}

// writeRelayURLs returns the normalized URLs of every relay currently
// registered with the pool whose service flags include WRITE.
func (p *Pool) writeRelayURLs() []string {
	var urls []string
	p.relays.Range(func(u string, client *relay.Client) bool {
		if client.Flags().Has(relay.FlagWrite) {
			urls = append(urls, u)
		}
		return true
	})
	return urls
}

// readRelayURLs returns the normalized URLs of every relay currently
// registered with the pool whose service flags include READ.
func (p *Pool) readRelayURLs() []string {
	var urls []string
	p.relays.Range(func(u string, client *relay.Client) bool {
		if client.Flags().Has(relay.FlagRead) {
			urls = append(urls, u)
		}
		return true
	})
	return urls
}

// SendEvent fans evt out to every registered relay whose service flags
// include WRITE and waits for every relay's outcome, succeeding if at
// least one of them acknowledged it with OK true within the per-relay
// send timeout. Unlike Publish, the
// relay set is derived from the pool's own registry rather than passed
// explicitly, matching the pool's WRITE-flag fan-out contract.
func (p *Pool) SendEvent(ctx context.Context, evt nostr.Event, opts ...relay.SendOption) ([]PublishResult, error) {
	urls := p.writeRelayURLs()
	if len(urls) == 0 {
		return nil, nostrerr.New(nostrerr.InvalidInput, "no WRITE relay registered")
	}
	return p.Publish(ctx, urls, evt, opts...)
}

// GetEventsOf runs a one-shot query on every registered relay whose
// service flags include READ, merging inbound events deduplicated by
// EventID, and returns once every relay has sent EOSE or ctx is done,
// whichever comes first. Unlike FetchMany, the relay set is derived from
// the pool's own registry rather than passed explicitly, matching the
// pool's READ-flag fan-out contract.
func (p *Pool) GetEventsOf(ctx context.Context, filters []nostr.Filter) ([]nostr.Event, error) {
	urls := p.readRelayURLs()
	if len(urls) == 0 {
		return nil, nostrerr.New(nostrerr.InvalidInput, "no READ relay registered")
	}
	return p.FetchMany(ctx, urls, filters)
}

// Reconcile runs a NIP-77 set-reconciliation session against relayURL,
// reconciling local's event set against opts.Filter in opts.Direction.
// It delegates the session itself to the negentropy package, layering
// it on the pool's own connection to relayURL rather than opening a
// throwaway one.
func (p *Pool) Reconcile(ctx context.Context, relayURL string, local negentropy.Storage, opts negentropy.Options) (negentropy.Result, error) {
	client, err := p.EnsureRelay(relayURL)
	if err != nil {
		return negentropy.Result{}, err
	}
	return negentropy.NewSession(client, local).Run(ctx, opts)
}

// PublishResult reports, per relay, whether a publish was
// acknowledged.
type PublishResult struct {
	Relay string
	Err   error
}

// Publish sends evt to every relay url and waits for every relay's
// outcome, which it reports individually. It succeeds if at least one
// relay acknowledged the event with OK true within the per-relay send
// timeout.
func (p *Pool) Publish(ctx context.Context, urls []string, evt nostr.Event, opts ...relay.SendOption) ([]PublishResult, error) {
	results := make([]PublishResult, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !p.acquireTask(ctx) {
				results[i] = PublishResult{Relay: u, Err: nostrerr.Wrap(nostrerr.Cancelled, "publish", ctx.Err())}
				return
			}
			defer p.releaseTask()
			client, err := p.EnsureRelay(u)
			if err != nil {
				results[i] = PublishResult{Relay: u, Err: err}
				return
			}
			ok, err := client.Publish(ctx, evt, opts...)
			if err == nil || nostrerr.Is(err, nostrerr.PublishRejected) {
				p.notify(Notification{Kind: NotifyOK, Relay: u, OK: ok})
			}
			results[i] = PublishResult{Relay: u, Err: err}
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return results, nostrerr.New(nostrerr.PublishRejected, "no relay acknowledged the event")
	}
	return results, nil
}

// Close tears down every relay connection the pool owns. reason is
// informational only. Close always terminates every relay regardless
// of WithShutdownOnDrop: that option only documents the pool's stance
// on an implicit drop, which Go has no reliable hook for, so an
// explicit Close is the only termination path this pool offers.
func (p *Pool) Close(reason string) {
	p.closeOnce.Do(func() {
		slog.Info("pool closing", "pool", p.id, "reason", reason)
		p.cancel()
		p.relays.Range(func(_ string, client *relay.Client) bool {
			client.Close()
			return true
		})
		p.notifyMu.Lock()
		p.notifyClosed = true
		close(p.notifications)
		p.notifyMu.Unlock()
	})
}
