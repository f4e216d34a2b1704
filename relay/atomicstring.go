package relay

import "sync/atomic"

// atomicString holds a string that can be read and written
// concurrently, used for the single most-recent AUTH challenge.
type atomicString struct {
	v atomic.Value
}

func (a *atomicString) load() string {
	v, _ := a.v.Load().(string)
	return v
}

func (a *atomicString) store(s string) {
	a.v.Store(s)
}
