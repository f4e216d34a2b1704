package nostr

import (
	"fmt"
	"strconv"
)

// ZapRequestData collects the fields NIP-57 embeds in a kind 9734 zap
// request's tags: who to pay, where the receipt should be published,
// and what is being zapped. Methods take the receiver by value and
// return a new value, so callers chain without aliasing shared state.
type ZapRequestData struct {
	PublicKey       PublicKey
	Relays          []string
	Amount          *uint64
	Lnurl           string
	EventID         *EventID
	EventCoordinate *Coordinate
}

// NewZapRequestData builds the required fields: who receives the zap
// and which relays the receipt should be published to.
func NewZapRequestData(publicKey PublicKey, relays []string) ZapRequestData {
	return ZapRequestData{PublicKey: publicKey, Relays: relays}
}

// WithAmount sets the amount in millisats the sender intends to pay.
func (d ZapRequestData) WithAmount(millisats uint64) ZapRequestData {
	d.Amount = &millisats
	return d
}

// WithLnurl attaches the recipient's bech32-encoded lnurl-pay URL.
func (d ZapRequestData) WithLnurl(lnurl string) ZapRequestData {
	d.Lnurl = lnurl
	return d
}

// WithEventID marks the zap as tipping a specific event.
func (d ZapRequestData) WithEventID(id EventID) ZapRequestData {
	d.EventID = &id
	return d
}

// WithEventCoordinate marks the zap as tipping a replaceable or
// parameterized-replaceable event addressed by coordinate.
func (d ZapRequestData) WithEventCoordinate(c Coordinate) ZapRequestData {
	d.EventCoordinate = &c
	return d
}

// Tags renders d into the tag set a kind 9734 zap request carries,
// in the order recipients and relays expect to find them.
func (d ZapRequestData) Tags() Tags {
	tags := Tags{{string(TagPubKeyRef), d.PublicKey.String()}}

	if len(d.Relays) > 0 {
		relayTag := make(Tag, 0, len(d.Relays)+1)
		relayTag = append(relayTag, string(TagRelays))
		relayTag = append(relayTag, d.Relays...)
		tags = append(tags, relayTag)
	}
	if d.EventID != nil {
		tags = append(tags, Tag{string(TagEventRef), d.EventID.String()})
	}
	if d.EventCoordinate != nil {
		tags = append(tags, d.EventCoordinate.Tag())
	}
	if d.Amount != nil {
		tags = append(tags, Tag{string(TagAmount), strconv.FormatUint(*d.Amount, 10)})
	}
	if d.Lnurl != "" {
		tags = append(tags, Tag{string(TagLnurl), d.Lnurl})
	}
	return tags
}

// NewZapRequest builds an unsigned kind 9734 event from d, ready for
// Sign. Content is the sender's comment, if any.
func NewZapRequest(d ZapRequestData, content string) Event {
	return Event{
		Kind:    KindZapRequest,
		Tags:    d.Tags(),
		Content: content,
	}
}

// ParseZapRequestData reconstructs ZapRequestData from a zap request
// event's tags, the inverse of Tags for round-tripping receipts.
func ParseZapRequestData(evt Event) (ZapRequestData, error) {
	pTag, ok := evt.Tags.GetFirst(string(TagPubKeyRef))
	if !ok {
		return ZapRequestData{}, fmt.Errorf("zap request missing %q tag", TagPubKeyRef)
	}
	pk, err := ParsePublicKey(pTag.Value())
	if err != nil {
		return ZapRequestData{}, fmt.Errorf("zap request pubkey: %w", err)
	}
	d := NewZapRequestData(pk, nil)

	if relayTag, ok := evt.Tags.GetFirst(string(TagRelays)); ok && len(relayTag) > 1 {
		d.Relays = append([]string(nil), relayTag[1:]...)
	}
	if eTag, ok := evt.Tags.GetFirst(string(TagEventRef)); ok {
		id, err := ParseEventID(eTag.Value())
		if err != nil {
			return ZapRequestData{}, fmt.Errorf("zap request event id: %w", err)
		}
		d = d.WithEventID(id)
	}
	if aTag, ok := evt.Tags.GetFirst(string(TagCoordinate)); ok {
		coord, err := ParseCoordinate(aTag.Value())
		if err != nil {
			return ZapRequestData{}, fmt.Errorf("zap request coordinate: %w", err)
		}
		d = d.WithEventCoordinate(coord)
	}
	if amtTag, ok := evt.Tags.GetFirst(string(TagAmount)); ok {
		amt, err := strconv.ParseUint(amtTag.Value(), 10, 64)
		if err != nil {
			return ZapRequestData{}, fmt.Errorf("zap request amount: %w", err)
		}
		d = d.WithAmount(amt)
	}
	if lnurlTag, ok := evt.Tags.GetFirst(string(TagLnurl)); ok {
		d = d.WithLnurl(lnurlTag.Value())
	}
	return d, nil
}
