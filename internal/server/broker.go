package server

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is one server-sent event: Name goes on the "event:" line and Data
// is the JSON payload.
type Event struct {
	Name string
	Data []byte
}

// SSE event names.
const (
	EventState    = "state"
	EventNavigate = "navigate"
)

const subscriberBuffer = 16

// Broker is an in-process pub/sub for SSE events, keyed by session ID.
// A subscriber that falls behind loses its oldest queued event, never the
// newest, so a stream always ends on the latest state.
type Broker struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger: logger,
		subs:   make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events for the given session.
func (b *Broker) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the session's subscribers.
func (b *Broker) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Publish sends v, JSON-encoded, to all subscribers of the given session.
func (b *Broker) Publish(sessionID, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding event", "session", sessionID, "event", name, "error", err)
		return
	}
	ev := Event{Name: name, Data: data}

	b.mu.RLock()
	for ch := range b.subs[sessionID] {
		b.deliver(sessionID, ch, ev)
	}
	b.mu.RUnlock()
}

// deliver queues ev on ch, evicting the oldest queued event when ch is full.
func (b *Broker) deliver(sessionID string, ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}

		select {
		case old := <-ch:
			b.logger.Warn("slow event subscriber, dropped event",
				"session", sessionID, "dropped", old.Name, "queued", ev.Name)
		default:
			// The reader drained the channel meanwhile; retry the send.
		}
	}
}

// Subscribers reports how many streams are open for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
