package nostr

import "time"

// Timestamp is the number of seconds since the UNIX epoch, as carried
// on the wire in the "created_at" field and in filter since/until.
type Timestamp uint64

// Now returns the current time as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now().Unix()) }

// Time converts the Timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0).UTC() }
