package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyDropsWhenBusFull(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	for i := 0; i < defaultNotificationChannelSize+10; i++ {
		p.notify(Notification{Kind: NotifyNotice, Notice: "spam"})
	}

	// The bus never blocks the caller even when nobody is draining it.
	assert.LessOrEqual(t, len(p.notifications), defaultNotificationChannelSize)
}

func TestNotificationsChannelDeliversInOrder(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	defer p.Close("test done")

	p.notify(Notification{Kind: NotifyNotice, Notice: "first"})
	p.notify(Notification{Kind: NotifyNotice, Notice: "second"})

	assert.Equal(t, "first", (<-p.Notifications()).Notice)
	assert.Equal(t, "second", (<-p.Notifications()).Notice)
}

func TestNotifyAfterCloseDoesNotPanic(t *testing.T) {
	t.Parallel()

	p := New(context.Background())
	p.Close("test done")

	assert.NotPanics(t, func() {
		p.notify(Notification{Kind: NotifyNotice, Notice: "late"})
	})
}
