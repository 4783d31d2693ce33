package event

import "sync"

// Listener receives one event value published to the topic it was
// registered against; the concrete type is one of this package's *Event
// structs.
type Listener func(evt interface{})

// Registry is a topic-keyed pub/sub: any number of listeners can subscribe
// to a Topic, and Publish fans an event out to all of them synchronously,
// in registration order. Grounded on the teacher's callback-struct monitors
// (event.CommandMonitor/event.PoolMonitor as consumed in x/mongo/driver/
// operation and topology/server.go), generalized into a registration list
// per topic rather than one fixed callback per concern.
type Registry struct {
	mu        sync.RWMutex
	listeners map[Topic][]Listener
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Topic][]Listener)}
}

// Subscribe registers l to receive every event published to topic.
func (r *Registry) Subscribe(topic Topic, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[topic] = append(r.listeners[topic], l)
}

// Publish fans evt out to every listener currently subscribed to topic. A
// nil Registry is a valid no-op publisher, so components can hold a
// *Registry field that's nil when observability isn't configured.
func (r *Registry) Publish(topic Topic, evt interface{}) {
	if r == nil {
		return
	}
	r.mu.RLock()
	ls := append([]Listener(nil), r.listeners[topic]...)
	r.mu.RUnlock()
	for _, l := range ls {
		l(evt)
	}
}
