package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asmogo/nostrpool/nostr"
)

// Subscription tracks one REQ opened on a Client: its filters, the
// channel EVENT frames are forwarded on, and the auto-close policy
// that governs one-shot historical queries.
type Subscription struct {
	ID      nostr.SubscriptionID
	Client  *Client
	Filters []nostr.Filter
	Options FilterOptions

	// Events receives every EVENT frame matched to this subscription,
	// in relay-arrival order. Closed when the subscription ends.
	Events chan nostr.Event
	// EndOfStoredEvents is closed once, when the relay's EOSE for
	// this subscription arrives.
	EndOfStoredEvents chan struct{}
	// ClosedReason receives the relay's CLOSED reason, if any.
	ClosedReason chan string

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu                sync.Mutex
	live              atomic.Bool
	eosed             atomic.Bool
	receivedSinceEOSE atomic.Int64
	storedwg          sync.WaitGroup
	closeOnce         sync.Once
}

func newSubscription(parent context.Context, client *Client, id nostr.SubscriptionID, filters []nostr.Filter, opts FilterOptions) *Subscription {
	ctx, cancel := context.WithCancelCause(parent)
	return &Subscription{
		ID:                id,
		Client:            client,
		Filters:           filters,
		Options:           opts,
		Events:            make(chan nostr.Event),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Fire sends the REQ frame opening this subscription on the relay.
func (s *Subscription) Fire() error {
	s.live.Store(true)
	msg := nostr.ReqMessage{SubscriptionID: s.ID, Filters: s.Filters}
	if err := s.Client.send(s.ctx, msg); err != nil {
		s.cancel(err)
		return fmt.Errorf("fire subscription %s: %w", s.ID, err)
	}
	return nil
}

// dispatchEvent forwards evt to Events, respecting EOSE ordering: an
// event that arrives before EOSE is guaranteed to be delivered before
// EndOfStoredEvents fires.
func (s *Subscription) dispatchEvent(evt nostr.Event) {
	tracked := false
	if !s.eosed.Load() {
		s.storedwg.Add(1)
		tracked = true
	} else {
		// Only events arriving after EOSE count toward
		// WaitForEventsAfterEOSE's threshold; counting backlog replay
		// here would let it fire before any "further" event actually
		// arrived.
		s.receivedSinceEOSE.Add(1)
	}

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.live.Load() {
			select {
			case s.Events <- evt:
			case <-s.ctx.Done():
			}
		}
		if tracked {
			s.storedwg.Done()
		}
		s.maybeAutoCloseAfterEvent()
	}()
}

func (s *Subscription) dispatchEose() {
	if !s.eosed.CompareAndSwap(false, true) {
		return
	}
	go func() {
		s.storedwg.Wait()
		close(s.EndOfStoredEvents)
		s.applyAutoClosePolicy()
	}()
}

func (s *Subscription) applyAutoClosePolicy() {
	switch s.Options.Kind() {
	case ExitOnEOSE:
		s.Unsub()
	case WaitDurationAfterEOSE:
		go func() {
			select {
			case <-time.After(s.Options.DurationAfterEOSE()):
				s.Unsub()
			case <-s.ctx.Done():
			}
		}()
	case WaitForEventsAfterEOSE:
		if s.Options.EventsAfterEOSE() <= 0 {
			s.Unsub()
		}
	}
}

func (s *Subscription) maybeAutoCloseAfterEvent() {
	if s.Options.Kind() != WaitForEventsAfterEOSE || !s.eosed.Load() {
		return
	}
	if s.receivedSinceEOSE.Load() >= int64(s.Options.EventsAfterEOSE()) {
		s.Unsub()
	}
}

// markDisconnected flags the subscription as not currently live
// without tearing it down: it stays in the client's subscription
// table so resubscribeAll fires a fresh REQ for it once the
// connection comes back, and its Events channel stays open for the
// caller across the gap.
func (s *Subscription) markDisconnected() {
	s.live.Store(false)
}

func (s *Subscription) handleClosed(reason string) {
	go func() {
		select {
		case s.ClosedReason <- reason:
		default:
		}
		s.live.Store(false)
		s.unsub(fmt.Errorf("relay sent CLOSED: %s", reason))
	}()
}

// Unsub ends the subscription, sending CLOSE to the relay.
func (s *Subscription) Unsub() {
	s.unsub(errors.New("unsub called"))
}

func (s *Subscription) unsub(cause error) {
	s.cancel(cause)
	if s.live.CompareAndSwap(true, false) {
		s.sendClose()
	}
	s.Client.subscriptions.Delete(s.ID)
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.Events)
		s.mu.Unlock()
	})
}

func (s *Subscription) sendClose() {
	if s.Client.Status() != StatusConnected {
		return
	}
	_ = s.Client.send(context.Background(), nostr.CloseMessage{SubscriptionID: s.ID})
}
