package bus

import (
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// Event represents a notification broadcast to subscribers (pub/sub pattern)
type Event struct {
	Topic     string    // Event topic: "interview.snapshot", "config.reloaded", etc.
	Data      any       // Optional payload data
	Timestamp time.Time // When the event was published
	Source    string    // Origin: "interview", "config", "system", etc.
}

// EventHandler processes an event (no return value - fire and forget)
type EventHandler func(Event)

// SubscriptionID uniquely identifies an event subscription
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
	sync    bool
}

// Subscribe registers a handler for a topic. Handlers run on their own
// goroutine, so ordering between events is not guaranteed.
func (b *Bus) Subscribe(topic string, handler EventHandler) SubscriptionID {
	return b.subscribe(topic, handler, false)
}

// SubscribeSync registers a handler that runs on the publisher's goroutine.
// Use it when event order matters (snapshot streams); the handler must not block.
func (b *Bus) SubscribeSync(topic string, handler EventHandler) SubscriptionID {
	return b.subscribe(topic, handler, true)
}

func (b *Bus) subscribe(topic string, handler EventHandler, sync bool) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&b.nextSubID, 1))

	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	b.subscriptions[topic] = append(b.subscriptions[topic], subscription{id: id, handler: handler, sync: sync})
	L_trace("bus: event subscribed", "topic", topic, "subscriptionID", id)
	return id
}

// Unsubscribe removes a subscription by its ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for topic, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(b.subscriptions, topic)
			} else {
				b.subscriptions[topic] = rest
			}
			return true
		}
	}
	return false
}

// Publish broadcasts an event to all subscribers of the topic.
func (b *Bus) Publish(topic string, data any, source string) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	b.subsMu.RLock()
	subs := make([]subscription, len(b.subscriptions[topic]))
	copy(subs, b.subscriptions[topic])
	b.subsMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		if sub.sync {
			b.deliver(sub, event)
			continue
		}
		go b.deliver(sub, event)
	}
}

func (b *Bus) deliver(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: event handler panic", "topic", event.Topic, "subscriptionID", s.id, "panic", r)
		}
	}()
	s.handler(event)
}

// CountSubscribers returns the number of subscribers for a topic
func (b *Bus) CountSubscribers(topic string) int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subscriptions[topic])
}

// PublishEvent broadcasts on the default bus.
func PublishEvent(topic string, data any) {
	Default.Publish(topic, data, "system")
}

// SubscribeEvent registers a handler on the default bus.
func SubscribeEvent(topic string, handler EventHandler) SubscriptionID {
	return Default.Subscribe(topic, handler)
}
