package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

func TestSnapshotBroadcaster_FiltersByAccount(t *testing.T) {
	b := NewSnapshotBroadcaster(4)
	alice := b.Subscribe("alice")
	all := b.Subscribe("")
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(all)

	b.Publish(domain.BalanceSnapshot{Account: "bob"})
	b.Publish(domain.BalanceSnapshot{Account: "alice"})

	got := <-alice
	assert.Equal(t, "alice", got.Account)
	assert.Len(t, alice, 0)
	assert.Len(t, all, 2)
}

func TestSnapshotBroadcaster_DropsForSlowConsumer(t *testing.T) {
	b := NewSnapshotBroadcaster(1)
	ch := b.Subscribe("")

	b.Publish(domain.BalanceSnapshot{Account: "a"})
	b.Publish(domain.BalanceSnapshot{Account: "b"})

	got := <-ch
	assert.Equal(t, "a", got.Account)
	b.Unsubscribe(ch)
}

func TestSnapshotBroadcaster_UnsubscribeClosesOnce(t *testing.T) {
	b := NewSnapshotBroadcaster(0)
	ch := b.Subscribe("x")
	require.Equal(t, 1, b.Subscribers())

	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())
}
