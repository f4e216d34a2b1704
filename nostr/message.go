package nostr

import (
	"encoding/json"
	"fmt"
)

// ClientMessage is anything a client sends to a relay: REQ, CLOSE,
// EVENT, AUTH or COUNT.
type ClientMessage interface {
	clientMessage()
	MarshalJSON() ([]byte, error)
}

// RelayMessage is anything a relay sends to a client: EVENT, EOSE,
// CLOSED, NOTICE, OK, AUTH or COUNT.
type RelayMessage interface {
	relayMessage()
}

// ReqMessage opens or replaces a subscription with one or more
// filters, combined with OR semantics by the relay.
type ReqMessage struct {
	SubscriptionID SubscriptionID
	Filters        []Filter
}

func (ReqMessage) clientMessage() {}

func (m ReqMessage) MarshalJSON() ([]byte, error) {
	arr := make([]interface{}, 0, len(m.Filters)+2)
	arr = append(arr, "REQ", m.SubscriptionID)
	for _, f := range m.Filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// CloseMessage ends a subscription.
type CloseMessage struct {
	SubscriptionID SubscriptionID
}

func (CloseMessage) clientMessage() {}

func (m CloseMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{"CLOSE", m.SubscriptionID})
}

// EventSubmission publishes an event (client -> relay EVENT frame).
type EventSubmission struct {
	Event Event
}

func (EventSubmission) clientMessage() {}

func (m EventSubmission) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{"EVENT", m.Event})
}

// AuthResponse answers a relay's AUTH challenge with a signed kind
// 22242 event (client -> relay AUTH frame).
type AuthResponse struct {
	Event Event
}

func (AuthResponse) clientMessage() {}

func (m AuthResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{"AUTH", m.Event})
}

// CountRequest asks a relay for the cardinality of a filter's match
// set instead of the events themselves (NIP-45).
type CountRequest struct {
	SubscriptionID SubscriptionID
	Filters        []Filter
}

func (CountRequest) clientMessage() {}

func (m CountRequest) MarshalJSON() ([]byte, error) {
	arr := make([]interface{}, 0, len(m.Filters)+2)
	arr = append(arr, "COUNT", m.SubscriptionID)
	for _, f := range m.Filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

// EventNotification is a relay -> client EVENT frame delivering one
// matching event for a subscription.
type EventNotification struct {
	SubscriptionID SubscriptionID
	Event          Event
}

func (EventNotification) relayMessage() {}

// EOSENotification marks the end of stored (historical) events for a
// subscription; subsequent EventNotifications are live.
type EOSENotification struct {
	SubscriptionID SubscriptionID
}

func (EOSENotification) relayMessage() {}

// ClosedNotification tells the client the relay closed a subscription
// on its own initiative, with a human-readable reason.
type ClosedNotification struct {
	SubscriptionID SubscriptionID
	Reason         string
}

func (ClosedNotification) relayMessage() {}

// Notice is a free-form human-readable message from the relay, not
// tied to any subscription.
type Notice struct {
	Message string
}

func (Notice) relayMessage() {}

// OKResponse acknowledges (or rejects) a published event.
type OKResponse struct {
	EventID EventID
	Saved   bool
	Message string
}

func (OKResponse) relayMessage() {}

// AuthChallenge is a relay's NIP-42 AUTH challenge string.
type AuthChallenge struct {
	Challenge string
}

func (AuthChallenge) relayMessage() {}

// CountResponse answers a CountRequest.
type CountResponse struct {
	SubscriptionID SubscriptionID
	Count          int
}

func (CountResponse) relayMessage() {}

// ParseRelayMessage decodes a raw relay->client frame into one of the
// RelayMessage variants, dispatching on the leading array element.
// Unrecognized frame types return an error; callers are expected to
// log and ignore per the protocol's tolerant-reader stance.
func ParseRelayMessage(raw []byte) (RelayMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("invalid relay frame: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty relay frame")
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return nil, fmt.Errorf("invalid relay frame label: %w", err)
	}

	switch label {
	case "EVENT":
		if len(arr) != 3 {
			return nil, fmt.Errorf("EVENT frame: expected 3 elements, got %d", len(arr))
		}
		var sub SubscriptionID
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return nil, fmt.Errorf("EVENT frame: %w", err)
		}
		var evt Event
		if err := json.Unmarshal(arr[2], &evt); err != nil {
			return nil, fmt.Errorf("EVENT frame: %w", err)
		}
		return EventNotification{SubscriptionID: sub, Event: evt}, nil

	case "EOSE":
		if len(arr) != 2 {
			return nil, fmt.Errorf("EOSE frame: expected 2 elements, got %d", len(arr))
		}
		var sub SubscriptionID
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return nil, fmt.Errorf("EOSE frame: %w", err)
		}
		return EOSENotification{SubscriptionID: sub}, nil

	case "CLOSED":
		if len(arr) != 3 {
			return nil, fmt.Errorf("CLOSED frame: expected 3 elements, got %d", len(arr))
		}
		var sub SubscriptionID
		var reason string
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return nil, fmt.Errorf("CLOSED frame: %w", err)
		}
		if err := json.Unmarshal(arr[2], &reason); err != nil {
			return nil, fmt.Errorf("CLOSED frame: %w", err)
		}
		return ClosedNotification{SubscriptionID: sub, Reason: reason}, nil

	case "NOTICE":
		if len(arr) != 2 {
			return nil, fmt.Errorf("NOTICE frame: expected 2 elements, got %d", len(arr))
		}
		var msg string
		if err := json.Unmarshal(arr[1], &msg); err != nil {
			return nil, fmt.Errorf("NOTICE frame: %w", err)
		}
		return Notice{Message: msg}, nil

	case "OK":
		if len(arr) != 4 {
			return nil, fmt.Errorf("OK frame: expected 4 elements, got %d", len(arr))
		}
		var id EventID
		var ok bool
		var msg string
		if err := json.Unmarshal(arr[1], &id); err != nil {
			return nil, fmt.Errorf("OK frame: %w", err)
		}
		if err := json.Unmarshal(arr[2], &ok); err != nil {
			return nil, fmt.Errorf("OK frame: %w", err)
		}
		if err := json.Unmarshal(arr[3], &msg); err != nil {
			return nil, fmt.Errorf("OK frame: %w", err)
		}
		return OKResponse{EventID: id, Saved: ok, Message: msg}, nil

	case "AUTH":
		if len(arr) != 2 {
			return nil, fmt.Errorf("AUTH frame: expected 2 elements, got %d", len(arr))
		}
		var challenge string
		if err := json.Unmarshal(arr[1], &challenge); err != nil {
			return nil, fmt.Errorf("AUTH frame: %w", err)
		}
		return AuthChallenge{Challenge: challenge}, nil

	case "COUNT":
		if len(arr) != 3 {
			return nil, fmt.Errorf("COUNT frame: expected 3 elements, got %d", len(arr))
		}
		var sub SubscriptionID
		if err := json.Unmarshal(arr[1], &sub); err != nil {
			return nil, fmt.Errorf("COUNT frame: %w", err)
		}
		var payload struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(arr[2], &payload); err != nil {
			return nil, fmt.Errorf("COUNT frame: %w", err)
		}
		return CountResponse{SubscriptionID: sub, Count: payload.Count}, nil

	default:
		return nil, fmt.Errorf("unrecognized relay frame type %q", label)
	}
}
