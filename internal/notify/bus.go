package notify

import (
	"log/slog"
	"sync"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// Handler receives one message from the channel.
type Handler func(models.NotificationMessage)

// Bus fans messages out to subscribers registered per message type.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

type subscription struct {
	id uint64
	fn Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for messages of eventType and returns a function
// that removes it. The returned function is safe to call more than once.
func (b *Bus) Subscribe(eventType string, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(eventType, id) })
	}
}

func (b *Bus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}

// Publish delivers msg to the subscribers of eventType. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bus) Publish(eventType string, msg models.NotificationMessage) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("notify.Bus: subscriber panicked", "type", eventType, "panic", r)
				}
			}()
			s.fn(msg)
		}()
	}
}

// Subscribers returns the number of handlers registered for eventType.
func (b *Bus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
