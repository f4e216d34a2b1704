package negentropy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/asmogo/nostrpool/nostr"
	"github.com/asmogo/nostrpool/nostrerr"
	"github.com/asmogo/nostrpool/relay"
)

const initialTimeout = 10 * time.Second

// Storage is the local event set a Session reconciles against a
// relay. Implementations are typically a thin wrapper around an
// in-memory index or an embedding application's own store; this
// package has no storage of its own.
type Storage interface {
	// Items returns every locally held event matching filter as
	// reconciliation Items.
	Items(filter nostr.Filter) ([]Item, error)
	// Fetch returns the full events for the given ids, for building
	// outbound batches during an Up reconciliation.
	Fetch(ids []nostr.EventID) ([]nostr.Event, error)
	// Store persists events pulled down during a Down reconciliation.
	Store(events []nostr.Event) error
}

// Result reports what a Session accomplished.
type Result struct {
	Pulled int // events fetched from the relay and handed to Storage.Store
	Pushed int // events published to the relay
}

// Session drives one reconciliation run between local and a single
// relay connection.
type Session struct {
	client  *relay.Client
	local   Storage
	encoder RangeEncoder
}

// NewSession builds a Session reconciling local against the relay
// reachable through client, using the default FingerprintEncoder.
func NewSession(client *relay.Client, local Storage) *Session {
	return &Session{client: client, local: local, encoder: NewFingerprintEncoder(BatchSizeDown)}
}

// WithEncoder overrides the default RangeEncoder.
func (s *Session) WithEncoder(enc RangeEncoder) *Session {
	s.encoder = enc
	return s
}

// negOpen/negMsg/negClose mirror NIP-77's client/relay frames closely
// enough to drive a handshake and exchange rounds; they live here
// rather than in the nostr package because the wire shape of the
// reconciliation payload itself is left to RangeEncoder, not fixed by
// the core protocol model.
type negOpenFrame struct {
	SubscriptionID nostr.SubscriptionID
	Filter         nostr.Filter
	InitialMsg     string
}

func (f negOpenFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{"NEG-OPEN", f.SubscriptionID, f.Filter, f.InitialMsg})
}

type negMsgFrame struct {
	SubscriptionID nostr.SubscriptionID
	Msg            string
}

func (f negMsgFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{"NEG-MSG", f.SubscriptionID, f.Msg})
}

type negCloseFrame struct {
	SubscriptionID nostr.SubscriptionID
}

func (f negCloseFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{"NEG-CLOSE", f.SubscriptionID})
}

// Run performs the reconciliation described by opts: it probes the
// relay for negentropy support, then pulls (Down), pushes (Up), or
// both, terminating when the reconciliation set empties out or the
// relay sends NEG-ERR/a terminal marker.
func (s *Session) Run(ctx context.Context, opts Options) (Result, error) {
	id, err := nostr.NewSubscriptionID()
	if err != nil {
		return Result{}, nostrerr.Wrap(nostrerr.InvalidInput, "generate negentropy session id", err)
	}

	localItems, err := s.local.Items(opts.Filter)
	if err != nil {
		return Result{}, fmt.Errorf("load local items: %w", err)
	}
	localMsg := s.encoder.Encode(localItems)
	localPayload, err := json.Marshal(localMsg)
	if err != nil {
		return Result{}, fmt.Errorf("encode initial message: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, initialTimeout)
	defer cancel()
	data, err := negOpenFrame{SubscriptionID: id, Filter: opts.Filter, InitialMsg: string(localPayload)}.MarshalJSON()
	if err != nil {
		return Result{}, err
	}
	if err := s.client.SendRaw(openCtx, data); err != nil {
		return Result{}, nostrerr.Wrap(nostrerr.FeatureUnsupported, "negentropy probe failed", err)
	}

	var result Result
	remoteMsg, err := s.awaitReply(openCtx, id)
	if err != nil {
		return result, nostrerr.Wrap(nostrerr.FeatureUnsupported, "negentropy handshake failed", err)
	}

	haveNotTheirs, needNotOurs := s.encoder.Diff(localMsg, remoteMsg, localItems)

	if opts.Direction == Down || opts.Direction == Both {
		pulled, err := s.pullMissing(ctx, needNotOurs)
		if err != nil {
			return result, err
		}
		result.Pulled = pulled
	}
	if opts.Direction == Up || opts.Direction == Both {
		pushed, err := s.pushMissing(ctx, haveNotTheirs)
		if err != nil {
			return result, err
		}
		result.Pushed = pushed
	}

	_ = s.client.SendRaw(ctx, mustMarshal(negCloseFrame{SubscriptionID: id}))
	return result, nil
}

func (s *Session) awaitReply(ctx context.Context, id nostr.SubscriptionID) (Message, error) {
	for {
		select {
		case raw := <-s.client.RawFrames():
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 3 {
				continue
			}
			var label string
			if err := json.Unmarshal(arr[0], &label); err != nil || (label != "NEG-MSG" && label != "NEG-ERR") {
				continue
			}
			var gotID nostr.SubscriptionID
			if err := json.Unmarshal(arr[1], &gotID); err != nil || gotID != id {
				continue
			}
			var payload string
			if err := json.Unmarshal(arr[2], &payload); err != nil {
				continue
			}
			if label == "NEG-ERR" {
				return Message{}, fmt.Errorf("relay sent NEG-ERR: %s", payload)
			}
			var msg Message
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				continue
			}
			return msg, nil
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// pullMissing fetches events the relay has that local doesn't, in
// batches bounded by BatchSizeDown, and hands them to Storage.Store.
func (s *Session) pullMissing(ctx context.Context, ids []nostr.EventID) (int, error) {
	pulled := 0
	for start := 0; start < len(ids); start += BatchSizeDown {
		end := start + BatchSizeDown
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		events, err := s.client.QueryEvents(ctx, []nostr.Filter{{IDs: batch}})
		if err != nil {
			return pulled, fmt.Errorf("fetch batch: %w", err)
		}
		if err := s.local.Store(events); err != nil {
			return pulled, fmt.Errorf("store pulled events: %w", err)
		}
		pulled += len(events)
	}
	return pulled, nil
}

// pushMissing publishes events local has that the relay doesn't,
// concurrently, with admission gated by the high/low watermarks: once
// HighWaterUp publishes are outstanding, new ones block until the
// in-flight count has drained back down to LowWaterUp, so an eager
// local set doesn't overrun the relay's backpressure.
func (s *Session) pushMissing(ctx context.Context, ids []nostr.EventID) (int, error) {
	events, err := s.local.Fetch(ids)
	if err != nil {
		return 0, fmt.Errorf("fetch events to push: %w", err)
	}

	var (
		mu       sync.Mutex
		cond     = sync.NewCond(&mu)
		wg       sync.WaitGroup
		inFlight int
		pushed   int
		firstErr error
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			cond.Broadcast()
			mu.Unlock()
		case <-done:
		}
	}()

	for _, evt := range events {
		mu.Lock()
		for inFlight >= HighWaterUp && ctx.Err() == nil {
			cond.Wait()
		}
		if ctx.Err() != nil {
			mu.Unlock()
			break
		}
		inFlight++
		mu.Unlock()

		evt := evt
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, pubErr := s.client.Publish(ctx, evt)

			mu.Lock()
			inFlight--
			if pubErr != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("publish event %s: %w", evt.ID, pubErr)
				}
			} else {
				pushed++
			}
			if inFlight <= LowWaterUp {
				cond.Broadcast()
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return pushed, firstErr
	}
	if err := ctx.Err(); err != nil {
		return pushed, fmt.Errorf("push missing: %w", err)
	}
	return pushed, nil
}

func mustMarshal(v json.Marshaler) []byte {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil
	}
	return b
}
