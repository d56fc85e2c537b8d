package events

import (
	"sync"

	"mnemo/pkg/logging"
)

// Topic names a signal.
type Topic string

const (
	// TopicUnauthorized is raised when an API call was rejected with 401
	// and the stored token has been cleared.
	TopicUnauthorized Topic = "unauthorized"

	// TopicCredentialsChanged is raised when another process rewrote the
	// credentials file.
	TopicCredentialsChanged Topic = "credentials-changed"
)

// Handler receives a signal.
type Handler func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans signals out to subscribers. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns a function that removes it.
// The returned function is idempotent.
func (b *Bus) Subscribe(topic Topic, fn Handler) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[Topic][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish invokes every handler subscribed to topic and returns how many ran.
// A panicking handler is logged and does not stop the others.
func (b *Bus) Publish(topic Topic) int {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	logging.Debug("Events", "Publishing %s to %d subscriber(s)", topic, len(subs))

	for _, s := range subs {
		b.invoke(topic, s.handler)
	}
	return len(subs)
}

func (b *Bus) invoke(topic Topic, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Events", "Handler for %s panicked: %v", topic, r)
		}
	}()
	fn()
}

// Subscribers reports how many handlers listen on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
