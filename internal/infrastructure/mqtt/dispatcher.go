package mqtt

import (
	"sort"
	"sync"
)

// MessageHandler receives a message whose topic matched a registration
// exactly. The payload is the raw message decoded as text.
type MessageHandler func(topic, payload string)

type registration struct {
	owner   string
	handler MessageHandler
}

// Dispatcher routes inbound messages to handlers registered for the exact
// topic string. MQTT wildcards are not interpreted.
//
// Handlers registered for the same topic run in registration order.
// Dispatch is serialized: one message is fully dispatched before the next
// one starts, so handlers never run concurrently with each other.
type Dispatcher struct {
	routes map[string][]registration
	mu     sync.RWMutex

	dispatchMu sync.Mutex

	logger Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		routes: make(map[string][]registration),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used to report recovered handler panics.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Register adds handler for topic under owner. A second registration by the
// same owner replaces the first one in place and keeps its position.
func (d *Dispatcher) Register(topic, owner string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.routes[topic]
	for i := range regs {
		if regs[i].owner == owner {
			regs[i].handler = handler
			return
		}
	}
	d.routes[topic] = append(regs, registration{owner: owner, handler: handler})
}

// Remove drops every handler for topic. It reports whether any existed.
func (d *Dispatcher) Remove(topic string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.routes[topic]
	delete(d.routes, topic)
	return ok
}

// RemoveOwner drops the handler owner registered for topic.
// It reports whether the topic still has other handlers.
func (d *Dispatcher) RemoveOwner(topic, owner string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.routes[topic]
	kept := regs[:0]
	for _, r := range regs {
		if r.owner != owner {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(d.routes, topic)
		return false
	}
	d.routes[topic] = kept
	return true
}

// Clear drops all registrations.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.routes = make(map[string][]registration)
	d.mu.Unlock()
}

// Has reports whether topic has at least one handler.
func (d *Dispatcher) Has(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.routes[topic]) > 0
}

// Topics returns the registered topics in sorted order.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	topics := make([]string, 0, len(d.routes))
	for t := range d.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of registered topics.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.routes)
}

// Dispatch delivers payload to every handler registered for topic and
// returns how many handlers ran. A panicking handler is logged and the
// remaining handlers still run.
func (d *Dispatcher) Dispatch(topic string, payload []byte) int {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.mu.RLock()
	regs := append([]registration(nil), d.routes[topic]...)
	logger := d.logger
	d.mu.RUnlock()

	text := string(payload)
	for _, r := range regs {
		d.invoke(logger, r, topic, text)
	}
	return len(regs)
}

func (d *Dispatcher) invoke(logger Logger, r registration, topic, payload string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("MQTT handler panic recovered",
				"topic", topic,
				"owner", r.owner,
				"panic", rec,
			)
		}
	}()
	r.handler(topic, payload)
}
