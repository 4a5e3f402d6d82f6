package backend

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
)

// Subscription is the channel a caller receives from Subscribe. The
// backend never blocks delivering to it: a subscriber that falls behind
// simply misses headers rather than stalling mining, matching spec §6's
// "non-blocking delivery" notification requirement.
type Subscription chan *types.Header

const subscriberBuffer = 16

// notifier fans newly mined headers out to every live subscriber without
// ever blocking the miner on a slow reader.
type notifier struct {
	mu   sync.Mutex
	subs []Subscription
}

// Subscribe registers a new listener for NewBlockNotification. The
// returned channel is closed by Unsubscribe; callers must not close it
// themselves.
func (n *notifier) Subscribe() Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(Subscription, subscriberBuffer)
	n.subs = append(n.subs, ch)
	return ch
}

// Unsubscribe removes and closes ch. Safe to call more than once.
func (n *notifier) Unsubscribe(ch Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s == ch {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			close(s)
			return
		}
	}
}

// publish delivers header to every subscriber, dropping it for any
// subscriber whose buffer is currently full rather than waiting.
func (n *notifier) publish(header *types.Header) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		select {
		case s <- header:
		default:
		}
	}
}
