// Package events fans applied balance snapshots out to the views that watch them.
package events

import (
	"sync"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

const defaultBuffer = 64

// SnapshotBroadcaster fans out snapshots to all subscribers via buffered channels.
type SnapshotBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.BalanceSnapshot]string
	buffer int
}

// NewSnapshotBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewSnapshotBroadcaster(buffer int) *SnapshotBroadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &SnapshotBroadcaster{
		subs:   make(map[chan domain.BalanceSnapshot]string),
		buffer: buffer,
	}
}

// Publish sends the snapshot to all subscribers of its account (and to wildcard
// subscribers), dropping if a reader is slow.
func (b *SnapshotBroadcaster) Publish(s domain.BalanceSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, account := range b.subs {
		if account != "" && account != s.Account {
			continue
		}
		select {
		case ch <- s:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives snapshots of account until
// Unsubscribe is called. An empty account subscribes to every account.
func (b *SnapshotBroadcaster) Subscribe(account string) chan domain.BalanceSnapshot {
	ch := make(chan domain.BalanceSnapshot, b.buffer)
	b.mu.Lock()
	b.subs[ch] = account
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *SnapshotBroadcaster) Unsubscribe(ch chan domain.BalanceSnapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (b *SnapshotBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
