// Package relay implements a single persistent connection to one
// Nostr relay: the websocket transport, the reconnect/backoff state
// machine, and the subscription table that REQ/EVENT/EOSE/CLOSED
// traffic is routed through.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/nostrerr"
)

const pingInterval = 29 * time.Second

type writeRequest struct {
	data   []byte
	answer chan error
}

type okWaiter struct {
	ch chan nostr.OKResponse
}

// Client is a single connection to one relay: it owns the socket, the
// write queue serializing outbound frames, and every live Subscription
// opened on it. All exported methods are safe for concurrent use.
type Client struct {
	URL  string
	opts *Options

	mu     sync.Mutex
	conn   *websocket.Conn
	status AtomicStatus

	// lifeCtx/lifeCancel bound the Client's whole lifetime and are
	// only ever cancelled by Close: subscriptions are parented to this
	// context so their Events channel survives reconnects.
	lifeCtx    context.Context
	lifeCancel context.CancelCauseFunc

	// ctx/cancel bound the current connection generation and are
	// replaced on every reconnect attempt in RunWithReconnect; the
	// write/read pumps and in-flight writes key off this one.
	ctx    context.Context
	cancel context.CancelCauseFunc

	subscriptions *xsync.MapOf[nostr.SubscriptionID, *Subscription]
	okWaiters     *xsync.MapOf[nostr.EventID, okWaiter]
	countWaiters  *xsync.MapOf[nostr.SubscriptionID, chan int]
	writeQueue    chan writeRequest

	challenge   atomicString
	attempts    int
	lastSuccess time.Time

	notices        chan string
	rawFrames      chan []byte
	authChallenges chan string
}

// New constructs a Client for url. The connection is not dialed until
// Connect is called.
func New(parent context.Context, url string, opts ...Option) *Client {
	lifeCtx, lifeCancel := context.WithCancelCause(parent)
	ctx, cancel := context.WithCancelCause(lifeCtx)
	return &Client{
		URL:           url,
		opts:          NewOptionsFrom(opts...),
		lifeCtx:       lifeCtx,
		lifeCancel:    lifeCancel,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: xsync.NewMapOf[nostr.SubscriptionID, *Subscription](),
		okWaiters:     xsync.NewMapOf[nostr.EventID, okWaiter](),
		countWaiters:  xsync.NewMapOf[nostr.SubscriptionID, chan int](),
		writeQueue:    make(chan writeRequest),
		notices:       make(chan string, 8),
		rawFrames:     make(chan []byte, 32),
		authChallenges: make(chan string, 4),
	}
}

// RawFrames delivers relay frames whose leading label this package
// doesn't recognize, letting extension protocols (negentropy's
// NEG-MSG/NEG-ERR) observe them without this package needing to know
// their shape.
func (c *Client) RawFrames() <-chan []byte { return c.rawFrames }

// SendRaw enqueues an already-encoded client frame, for extension
// protocols that define their own envelope types outside the core
// REQ/EVENT/CLOSE/AUTH/COUNT set.
func (c *Client) SendRaw(ctx context.Context, data []byte) error {
	wr := writeRequest{data: data, answer: make(chan error, 1)}
	select {
	case c.writeQueue <- wr:
	case <-c.ctx.Done():
		return nostrerr.WithRelay(nostrerr.Disconnected, c.URL, "connection closed")
	case <-ctx.Done():
		return nostrerr.Wrap(nostrerr.Cancelled, "send cancelled", ctx.Err())
	}
	select {
	case err := <-wr.answer:
		if err != nil {
			return nostrerr.Wrap(nostrerr.Transport, "write failed", err)
		}
		return nil
	case <-ctx.Done():
		return nostrerr.Wrap(nostrerr.Cancelled, "send cancelled", ctx.Err())
	}
}

// Status returns the connection's current lifecycle state.
func (c *Client) Status() Status { return c.status.Load() }

// Flags returns the connection's live-updatable service-role bitset,
// letting a pool coordinator decide whether this relay participates
// in a given fan-out without needing its own copy of the flags.
func (c *Client) Flags() *AtomicServiceFlags { return c.opts.Flags }

// Notices delivers relay NOTICE messages; the channel is never
// closed, and callers that don't drain it will simply miss notices
// past the buffer size.
func (c *Client) Notices() <-chan string { return c.notices }

// Challenge returns the most recent NIP-42 AUTH challenge the relay
// sent, or "" if none.
func (c *Client) Challenge() string { return c.challenge.load() }

// AuthChallenges delivers each NIP-42 AUTH challenge string as it
// arrives, for callers (typically a pool) that want to react to a
// fresh challenge rather than polling Challenge. Like Notices, a slow
// or absent consumer simply misses challenges past the buffer size;
// Challenge() always reflects the latest one regardless.
func (c *Client) AuthChallenges() <-chan string { return c.authChallenges }

// Connect dials the relay and starts the write pump and reader
// goroutines. It blocks until the socket is open or ctx/ dial fails.
func (c *Client) Connect(ctx context.Context) error {
	if c.status.Is(StatusTerminated) {
		return nostrerr.WithRelay(nostrerr.Terminated, c.URL, "relay terminated")
	}
	c.status.Store(StatusConnecting)
	conn, err := dial(ctx, c.URL, c.opts)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return nostrerr.WithRelay(nostrerr.Transport, c.URL, err.Error())
	}

	c.mu.Lock()
	c.conn = conn
	// A generation ended by Disconnect leaves c.ctx cancelled; start a
	// fresh one so the pumps below run.
	if c.ctx.Err() != nil {
		c.ctx, c.cancel = context.WithCancelCause(c.lifeCtx)
	}
	c.mu.Unlock()
	c.status.Store(StatusConnected)
	c.attempts = 0
	c.lastSuccess = time.Now()

	go c.writePump()
	go c.readPump()

	c.resubscribeAll()
	return nil
}

// RunWithReconnect keeps the relay connected: if the connection isn't
// already established (e.g. by a prior explicit Connect call), it
// dials; either way it then waits out the current connection
// generation and, if opts.Reconnect() is true, keeps redialing with
// backoff after every disconnect until ctx is done or Close/Disconnect
// is called. It returns once the connection is stopped or permanently
// terminated. Checking Status() before dialing avoids double-dialing
// (and leaking the reader/writer goroutines and socket of a first,
// abandoned connection) when the caller already connected before
// handing the Client to RunWithReconnect.
func (c *Client) RunWithReconnect(ctx context.Context) {
	for {
		switch c.status.Load() {
		case StatusTerminated, StatusStopped:
			return
		}

		connected := c.status.Load() == StatusConnected
		if !connected {
			if err := c.Connect(ctx); err != nil {
				slog.Warn("relay connect failed", "relay", c.URL, "err", err)
			} else {
				connected = true
			}
		}
		if connected {
			<-c.ctx.Done()
			c.mu.Lock()
			conn := c.conn
			c.conn = nil
			c.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
		}

		switch c.status.Load() {
		case StatusTerminated, StatusStopped:
			return
		}
		c.status.Store(StatusDisconnected)
		if !c.opts.Reconnect() {
			return
		}
		c.attempts++

		delay := c.backoffDelay()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		ctx2, cancel := context.WithCancelCause(c.lifeCtx)
		c.ctx, c.cancel = ctx2, cancel
		c.mu.Unlock()
	}
}

func (c *Client) backoffDelay() time.Duration {
	base := c.opts.RetrySec()
	if !c.opts.AdjustRetrySec() {
		return time.Duration(base) * time.Second
	}
	adjusted := base * uint64(c.attempts)
	if adjusted > MaxAdjRetrySec {
		adjusted = MaxAdjRetrySec
	}
	if adjusted < MinRetrySec {
		adjusted = MinRetrySec
	}
	return time.Duration(adjusted) * time.Second
}

func (c *Client) resubscribeAll() {
	c.subscriptions.Range(func(_ nostr.SubscriptionID, sub *Subscription) bool {
		if err := sub.Fire(); err != nil {
			slog.Warn("resubscribe failed", "relay", c.URL, "sub", sub.ID, "err", err)
		}
		return true
	})
}

// writePump serializes every outbound frame and the periodic ping
// through a single goroutine so no two goroutines write to the socket
// concurrently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.terminateConnection(fmt.Errorf("ping failed: %w", err))
				return
			}
		case wr := <-c.writeQueue:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				wr.answer <- nostrerr.WithRelay(nostrerr.Disconnected, c.URL, "not connected")
				continue
			}
			err := conn.WriteMessage(websocket.TextMessage, wr.data)
			wr.answer <- err
		}
	}
}

func (c *Client) readPump() {
	defer c.terminateConnection(fmt.Errorf("read loop exited"))
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	msg, err := nostr.ParseRelayMessage(data)
	if err != nil {
		// Frames this package doesn't model (e.g. NIP-77's NEG-MSG)
		// are handed to any extension listening on RawFrames instead
		// of being dropped outright.
		select {
		case c.rawFrames <- data:
		default:
		}
		return
	}

	switch m := msg.(type) {
	case nostr.EventNotification:
		if sub, ok := c.subscriptions.Load(m.SubscriptionID); ok {
			if sub.Filters == nil || matchesAny(sub.Filters, m.Event) {
				sub.dispatchEvent(m.Event)
			}
		}
	case nostr.EOSENotification:
		if sub, ok := c.subscriptions.Load(m.SubscriptionID); ok {
			sub.dispatchEose()
		}
	case nostr.ClosedNotification:
		if sub, ok := c.subscriptions.Load(m.SubscriptionID); ok {
			sub.handleClosed(m.Reason)
		}
	case nostr.Notice:
		select {
		case c.notices <- m.Message:
		default:
		}
	case nostr.AuthChallenge:
		c.challenge.store(m.Challenge)
		select {
		case c.authChallenges <- m.Challenge:
		default:
		}
	case nostr.OKResponse:
		if w, ok := c.okWaiters.LoadAndDelete(m.EventID); ok {
			w.ch <- m
		}
	case nostr.CountResponse:
		if ch, ok := c.countWaiters.LoadAndDelete(m.SubscriptionID); ok {
			ch <- m.Count
		}
	}
}

func matchesAny(filters []nostr.Filter, evt nostr.Event) bool {
	for _, f := range filters {
		if f.Matches(&evt) {
			return true
		}
	}
	return false
}

// send enqueues msg for the write pump, blocking until it is written
// or the connection/context ends.
func (c *Client) send(ctx context.Context, msg nostr.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return nostrerr.Wrap(nostrerr.InvalidInput, "marshal client message", err)
	}
	wr := writeRequest{data: data, answer: make(chan error, 1)}
	select {
	case c.writeQueue <- wr:
	case <-c.ctx.Done():
		return nostrerr.WithRelay(nostrerr.Disconnected, c.URL, "connection closed")
	case <-ctx.Done():
		return nostrerr.Wrap(nostrerr.Cancelled, "send cancelled", ctx.Err())
	}
	select {
	case err := <-wr.answer:
		if err != nil {
			return nostrerr.Wrap(nostrerr.Transport, "write failed", err)
		}
		return nil
	case <-ctx.Done():
		return nostrerr.Wrap(nostrerr.Cancelled, "send cancelled", ctx.Err())
	}
}

// Publish sends evt and waits for the relay's OK acknowledgment.
func (c *Client) Publish(ctx context.Context, evt nostr.Event, opts ...SendOption) (nostr.OKResponse, error) {
	so := NewSendOptionsFrom(opts...)
	if so.SkipDisconnected && c.Status() != StatusConnected {
		return nostr.OKResponse{}, nostrerr.WithRelay(nostrerr.Disconnected, c.URL, "not connected")
	}

	waitCtx, cancel := context.WithTimeout(ctx, so.Timeout)
	defer cancel()

	waiter := okWaiter{ch: make(chan nostr.OKResponse, 1)}
	c.okWaiters.Store(evt.ID, waiter)
	defer c.okWaiters.Delete(evt.ID)

	if err := c.send(waitCtx, nostr.EventSubmission{Event: evt}); err != nil {
		return nostr.OKResponse{}, err
	}

	select {
	case ok := <-waiter.ch:
		if !ok.Saved {
			return ok, nostrerr.WithRelay(nostrerr.PublishRejected, c.URL, ok.Message)
		}
		return ok, nil
	case <-waitCtx.Done():
		return nostr.OKResponse{}, nostrerr.WithRelay(nostrerr.Timeout, c.URL, "OK ack timeout")
	}
}

// Auth responds to the relay's AUTH challenge with a signed kind
// 22242 event.
func (c *Client) Auth(ctx context.Context, signer nostr.Signer, relayURL string) error {
	challenge := c.Challenge()
	if challenge == "" {
		return nostrerr.WithRelay(nostrerr.AuthRequired, c.URL, "no pending challenge")
	}
	evt := nostr.Event{
		Kind: nostr.KindClientAuthentication,
		Tags: nostr.Tags{
			{"relay", relayURL},
			{"challenge", challenge},
		},
	}
	if err := evt.Sign(signer); err != nil {
		return nostrerr.Wrap(nostrerr.InvalidInput, "sign auth event", err)
	}
	return c.SendAuthEvent(ctx, evt)
}

// SendAuthEvent sends an already-built, already-signed kind 22242 AUTH
// event as-is, for callers (e.g. a pool's AuthHandler) that construct
// the event themselves rather than handing this package a Signer.
func (c *Client) SendAuthEvent(ctx context.Context, evt nostr.Event) error {
	return c.send(ctx, nostr.AuthResponse{Event: evt})
}

// Subscribe opens filters under a fresh subscription id and returns
// the Subscription handle.
func (c *Client) Subscribe(ctx context.Context, filters []nostr.Filter, opts FilterOptions) (*Subscription, error) {
	id, err := nostr.NewSubscriptionID()
	if err != nil {
		return nil, nostrerr.Wrap(nostrerr.InvalidInput, "generate subscription id", err)
	}
	return c.subscribeWithID(ctx, id, filters, opts)
}

// SubscribeWithID is Subscribe with a caller-chosen id rather than a
// freshly generated one, so a pool can open the same subscription id
// across many relays and recognize them as the same logical
// subscription.
func (c *Client) SubscribeWithID(ctx context.Context, id nostr.SubscriptionID, filters []nostr.Filter, opts FilterOptions) (*Subscription, error) {
	return c.subscribeWithID(ctx, id, filters, opts)
}

func (c *Client) subscribeWithID(ctx context.Context, id nostr.SubscriptionID, filters []nostr.Filter, opts FilterOptions) (*Subscription, error) {
	sub := newSubscription(c.lifeCtx, c, id, filters, opts)
	c.subscriptions.Store(id, sub)
	if err := sub.Fire(); err != nil {
		c.subscriptions.Delete(id)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe closes the subscription identified by id, if open.
func (c *Client) Unsubscribe(id nostr.SubscriptionID) {
	if sub, ok := c.subscriptions.Load(id); ok {
		sub.Unsub()
	}
}

// QueryEvents runs a one-shot historical query, closing the
// subscription on first EOSE and returning every event received
// before it (or before ctx's deadline, whichever comes first).
func (c *Client) QueryEvents(ctx context.Context, filters []nostr.Filter) ([]nostr.Event, error) {
	sub, err := c.Subscribe(ctx, filters, NewExitOnEOSE())
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()

	var events []nostr.Event
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return events, nil
			}
			events = append(events, evt)
		case <-sub.EndOfStoredEvents:
			return events, nil
		case <-ctx.Done():
			return events, nostrerr.Wrap(nostrerr.Timeout, "query events", ctx.Err())
		}
	}
}

// Count asks the relay for the cardinality of filters without
// fetching the matching events (NIP-45).
func (c *Client) Count(ctx context.Context, filters []nostr.Filter) (int, error) {
	id, err := nostr.NewSubscriptionID()
	if err != nil {
		return 0, nostrerr.Wrap(nostrerr.InvalidInput, "generate subscription id", err)
	}

	resultCh := make(chan int, 1)
	c.countWaiters.Store(id, resultCh)
	defer c.countWaiters.Delete(id)

	if err := c.send(ctx, nostr.CountRequest{SubscriptionID: id, Filters: filters}); err != nil {
		return 0, err
	}
	select {
	case n := <-resultCh:
		return n, nil
	case <-ctx.Done():
		return 0, nostrerr.Wrap(nostrerr.Timeout, "count", ctx.Err())
	}
}

// terminateConnection tears down the current connection generation:
// it cancels the connection context and closes the socket, but
// leaves the subscription table intact so resubscribeAll can replay
// every still-open subscription once RunWithReconnect dials again.
// This is what keeps a subscription alive across disconnect/reconnect
// without an explicit Unsubscribe.
func (c *Client) terminateConnection(cause error) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.cancel(cause)
	c.subscriptions.Range(func(_ nostr.SubscriptionID, sub *Subscription) bool {
		sub.markDisconnected()
		return true
	})
}

// Disconnect gracefully closes the current connection generation and
// transitions the Client to StatusStopped: RunWithReconnect's own
// backoff loop will not redial out of Stopped the way it would out of
// a transient StatusDisconnected, but Stopped is not absorbing the way
// Terminated is — a later explicit Connect (followed by a fresh
// RunWithReconnect, if the caller wants the backoff loop back) resumes
// the relay. Open subscriptions are marked disconnected, not removed,
// so they replay if the relay is reconnected.
func (c *Client) Disconnect() {
	if !c.status.Is(StatusTerminated) {
		c.status.Store(StatusStopped)
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.cancel(fmt.Errorf("disconnected by caller"))
	c.subscriptions.Range(func(_ nostr.SubscriptionID, sub *Subscription) bool {
		sub.markDisconnected()
		return true
	})
}

// Close permanently terminates the relay connection: RunWithReconnect
// will not retry afterwards, and every open subscription is torn down
// for good (its Events channel closes and it is dropped from the
// subscription table).
func (c *Client) Close() {
	c.status.Store(StatusTerminated)
	c.lifeCancel(fmt.Errorf("closed by caller"))
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.cancel(fmt.Errorf("closed by caller"))
	c.subscriptions.Range(func(_ nostr.SubscriptionID, sub *Subscription) bool {
		sub.unsub(fmt.Errorf("client closed"))
		return true
	})
}
