// Package negentropy drives NIP-77 set reconciliation between a local
// event set and a relay's: given a Filter, it figures out which
// events each side is missing without transferring the full set, and
// pulls (or pushes) just the difference.
package negentropy

import "github.com/asmogo/nostrpool/nostr"

// Tuning constants matched to the reference client's throttling
// knobs for reconciliation traffic.
const (
	BatchSizeDown = 50
	HighWaterUp   = 100
	LowWaterUp    = 50
)

// Direction governs which side of the reconciliation pulls or pushes
// the events the other side is missing.
type Direction int

const (
	// Down pulls missing events matching Filter from relay to client.
	Down Direction = iota
	// Up pushes missing events matching Filter from client to relay.
	Up
	// Both performs Down then Up.
	Both
)

// Options configures a single reconciliation run.
type Options struct {
	Direction Direction
	Filter    nostr.Filter
}

// NewOptions returns Options over filter with the default Down
// direction.
func NewOptions(filter nostr.Filter) Options {
	return Options{Direction: Down, Filter: filter}
}

// WithDirection overrides the default Down direction.
func (o Options) WithDirection(d Direction) Options {
	o.Direction = d
	return o
}
