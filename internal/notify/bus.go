package notify

import (
	"log/slog"
	"sync"
)

type subscriber struct {
	token int
	fn    func()
}

// Bus fans out zero-argument change callbacks to presentation layers.
// Duplicate subscriptions are allowed; each Subscribe returns its own token
// and callers unsubscribe exactly once per subscribe. A subscriber that
// panics is isolated: the remaining subscribers still run and the publisher
// never sees the failure.
type Bus struct {
	mu   sync.Mutex
	next int
	subs []subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns the token used to remove it.
func (b *Bus) Subscribe(fn func()) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.subs = append(b.subs, subscriber{token: b.next, fn: fn})
	return b.next
}

// Unsubscribe removes the subscriber registered under token. Unknown
// tokens are ignored.
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every subscriber in registration order.
func (b *Bus) Publish() {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		invoke(s)
	}
}

func invoke(s subscriber) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("change listener panicked", slog.Int("token", s.token), slog.Any("panic", r))
		}
	}()
	s.fn()
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
