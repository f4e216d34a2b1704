package pool

import "github.com/asmogo/nostrpool/nostr"

// NotificationKind discriminates the variants carried on a Pool's
// notification bus.
type NotificationKind int

const (
	NotifyEvent NotificationKind = iota
	NotifyNotice
	NotifyOK
	NotifyAuth
)

// Notification is the pool-wide, per-relay-tagged observation bus:
// every inbound EVENT, NOTICE, OK and AUTH challenge passes through
// here regardless of which merged API call (if any) is also
// consuming it. Events pulled by Reconcile go to its Storage and are
// not published here.
type Notification struct {
	Kind  NotificationKind
	Relay string

	SubscriptionID nostr.SubscriptionID
	Event          nostr.Event
	Notice         string
	OK             nostr.OKResponse
	Challenge      string
}

// defaultNotificationChannelSize bounds how many pending notifications
// the bus holds; once it is full, the oldest pending one is dropped to
// make room for each new one, so slow consumers lose the oldest entries
// but never block relay goroutines. Overridable per-pool via
// WithNotificationChannelSize.
const defaultNotificationChannelSize = 4096

// defaultTaskChannelSize bounds how many fan-out operations the pool
// runs against relays concurrently. Overridable per-pool via
// WithTaskChannelSize.
const defaultTaskChannelSize = 4096

func (p *Pool) notify(n Notification) {
	p.notifyMu.RLock()
	defer p.notifyMu.RUnlock()
	if p.notifyClosed {
		return
	}
	select {
	case p.notifications <- n:
	default:
		select {
		case <-p.notifications:
		default:
		}
		select {
		case p.notifications <- n:
		default:
		}
	}
}

// Notifications returns the pool's merged notification bus.
func (p *Pool) Notifications() <-chan Notification { return p.notifications }
