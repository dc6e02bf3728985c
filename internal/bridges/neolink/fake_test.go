package neolink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
)

type published struct {
	Topic   string
	Payload string
	Retain  bool
}

// fakeBus is an in-memory Session. Subscriptions are keyed by topic and
// owner the way the real dispatcher keys them.
type fakeBus struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]map[string]mqtt.MessageHandler
	onConnect  func()
	connected  bool
	connects   int
	disconnect int

	subscribeErr error
	connectErr   error
	publishErr   error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]map[string]mqtt.MessageHandler), connected: true}
}

func (b *fakeBus) Publish(_ context.Context, topic string, value any, retain bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	payload, _ := value.(string)
	b.published = append(b.published, published{topic, payload, retain})
	return nil
}

func (b *fakeBus) SubscribeOwned(_ context.Context, owner, topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[string]mqtt.MessageHandler)
	}
	b.handlers[topic][owner] = handler
	return nil
}

func (b *fakeBus) UnsubscribeOwned(_ context.Context, owner, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers[topic], owner)
	if len(b.handlers[topic]) == 0 {
		delete(b.handlers, topic)
	}
	return nil
}

func (b *fakeBus) SetOnConnect(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = fn
}

func (b *fakeBus) Connect(context.Context, bool) error {
	b.mu.Lock()
	b.connects++
	if b.connectErr != nil {
		b.mu.Unlock()
		return b.connectErr
	}
	b.connected = true
	fn := b.onConnect
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (b *fakeBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnect++
	b.connected = false
	b.handlers = make(map[string]map[string]mqtt.MessageHandler)
}

// deliver runs every handler registered for topic.
func (b *fakeBus) deliver(topic, payload string) int {
	b.mu.Lock()
	hs := make([]mqtt.MessageHandler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(topic, payload)
	}
	return len(hs)
}

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	return out
}

func (b *fakeBus) handlerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}

func (b *fakeBus) publishes() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

// fakeRecorder captures telemetry.
type fakeRecorder struct {
	mu         sync.Mutex
	battery    []float64
	motion     []bool
	connection []bool
}

func (r *fakeRecorder) RecordBattery(_ string, level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery = append(r.battery, level)
}

func (r *fakeRecorder) RecordMotion(_ string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motion = append(r.motion, active)
}

func (r *fakeRecorder) motions() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.motion...)
}

func (r *fakeRecorder) RecordConnection(_ string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connection = append(r.connection, connected)
}

// fakeRegistry is an in-memory DeviceRegistry.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{devices: make(map[string]*device.Device)}
}

func (r *fakeRegistry) RegisterOrUpdateDevice(_ context.Context, d *device.Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d.DeepCopy()
	return nil
}

func (r *fakeRegistry) GetDevice(_ context.Context, id string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (r *fakeRegistry) ListCameras(context.Context) []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []device.Device
	for _, d := range r.devices {
		if d.IsCamera() {
			out = append(out, *d.DeepCopy())
		}
	}
	return out
}

func (r *fakeRegistry) ListChildren(_ context.Context, parentID string) []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []device.Device
	for _, d := range r.devices {
		if d.ParentID != nil && *d.ParentID == parentID {
			out = append(out, *d.DeepCopy())
		}
	}
	return out
}

func (r *fakeRegistry) RemoveDevice(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(r.devices, id)
	for cid, d := range r.devices {
		if d.ParentID != nil && *d.ParentID == id {
			delete(r.devices, cid)
		}
	}
	return nil
}

// fakeSettings is an in-memory Settings.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
	putErr error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (s *fakeSettings) GetOr(_ context.Context, key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *fakeSettings) Put(_ context.Context, key, value string) error {
	if s.putErr != nil {
		return s.putErr
	}
	if key == "" {
		return errors.New("empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.values, key)
		return nil
	}
	s.values[key] = value
	return nil
}

// pahoStub is a broker-less paho client for driving a real *mqtt.Session.
// It records every publish that reaches the wire.
type pahoStub struct {
	pahomqtt.Client

	mu     sync.Mutex
	open   bool
	writes []published
}

type doneToken struct {
	pahomqtt.Token
	done chan struct{}
}

func newDoneToken() *doneToken {
	t := &doneToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error          { return nil }
func (t *doneToken) Wait() bool            { return true }

func (c *pahoStub) factory(*pahomqtt.ClientOptions) pahomqtt.Client { return c }

func (c *pahoStub) Connect() pahomqtt.Token {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return newDoneToken()
}

func (c *pahoStub) IsConnected() bool { return c.IsConnectionOpen() }

func (c *pahoStub) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *pahoStub) Disconnect(uint) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *pahoStub) Publish(topic string, _ byte, retained bool, payload any) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, published{topic, fmt.Sprint(payload), retained})
	return newDoneToken()
}

func (c *pahoStub) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return newDoneToken()
}

func (c *pahoStub) Unsubscribe(...string) pahomqtt.Token { return newDoneToken() }

func (c *pahoStub) writesTo(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, w := range c.writes {
		if w.Topic == topic {
			out = append(out, w)
		}
	}
	return out
}
