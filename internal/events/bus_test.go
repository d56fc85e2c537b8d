package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var order []int
	bus.Subscribe(TopicUnauthorized, func() { order = append(order, 1) })
	bus.Subscribe(TopicUnauthorized, func() { order = append(order, 2) })
	bus.Subscribe(TopicCredentialsChanged, func() { order = append(order, 99) })

	n := bus.Publish(TopicUnauthorized)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_Cancel(t *testing.T) {
	bus := NewBus()

	var calls int
	cancel := bus.Subscribe(TopicUnauthorized, func() { calls++ })
	assert.Equal(t, 1, bus.Subscribers(TopicUnauthorized))

	cancel()
	cancel()

	assert.Equal(t, 0, bus.Publish(TopicUnauthorized))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Subscribers(TopicUnauthorized))
}

func TestBus_CancelKeepsOthers(t *testing.T) {
	bus := NewBus()

	var a, b int
	cancelA := bus.Subscribe(TopicUnauthorized, func() { a++ })
	bus.Subscribe(TopicUnauthorized, func() { b++ })

	cancelA()
	bus.Publish(TopicUnauthorized)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
}

func TestBus_ZeroValue(t *testing.T) {
	var bus Bus
	var called bool
	bus.Subscribe(TopicUnauthorized, func() { called = true })
	bus.Publish(TopicUnauthorized)
	assert.True(t, called)
}

func TestBus_HandlerMayReenter(t *testing.T) {
	bus := NewBus()

	var inner int
	var cancel func()
	cancel = bus.Subscribe(TopicUnauthorized, func() {
		cancel()
		bus.Subscribe(TopicCredentialsChanged, func() { inner++ })
		bus.Publish(TopicCredentialsChanged)
	})

	bus.Publish(TopicUnauthorized)
	bus.Publish(TopicUnauthorized)

	assert.Equal(t, 1, inner)
}

func TestBus_PanicIsolated(t *testing.T) {
	bus := NewBus()

	var after bool
	bus.Subscribe(TopicUnauthorized, func() { panic("boom") })
	bus.Subscribe(TopicUnauthorized, func() { after = true })

	assert.NotPanics(t, func() { bus.Publish(TopicUnauthorized) })
	assert.True(t, after)
}

func TestBus_ConcurrentUse(t *testing.T) {
	bus := NewBus()
	var calls int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := bus.Subscribe(TopicUnauthorized, func() { atomic.AddInt64(&calls, 1) })
			bus.Publish(TopicUnauthorized)
			cancel()
		}()
	}
	wg.Wait()

	assert.Positive(t, atomic.LoadInt64(&calls))
	assert.Equal(t, 0, bus.Subscribers(TopicUnauthorized))
}

func TestBus_NilHandler(t *testing.T) {
	bus := NewBus()
	cancel := bus.Subscribe(TopicUnauthorized, nil)
	cancel()
	assert.Equal(t, 0, bus.Subscribers(TopicUnauthorized))
}
