package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// =============================================================================
// Fake paho transport
// =============================================================================

type fakeToken struct {
	pahomqtt.Token
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeBroker records every operation of the clients it creates.
type fakeBroker struct {
	mu sync.Mutex

	clients   []*fakeClient
	published []publishedMessage
	attempts  int
	ops       []string

	connectErrs  []error
	publishErrs  []error
	subscribeErr error
	connectDelay time.Duration
	// connectLatency completes the connect token asynchronously.
	connectLatency time.Duration
	// stallPublish returns publish tokens that never complete.
	stallPublish bool
}

func (b *fakeBroker) factory(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &fakeClient{broker: b, opts: opts}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBroker) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeBroker) last() *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (b *fakeBroker) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedMessage(nil), b.published...)
}

func (b *fakeBroker) operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type fakeClient struct {
	pahomqtt.Client
	broker *fakeBroker
	opts   *pahomqtt.ClientOptions

	mu          sync.Mutex
	open        bool
	disconnects int
}

func (c *fakeClient) Connect() pahomqtt.Token {
	if c.broker.connectDelay > 0 {
		time.Sleep(c.broker.connectDelay)
	}
	c.broker.mu.Lock()
	err := pop(&c.broker.connectErrs)
	c.broker.mu.Unlock()

	if latency := c.broker.connectLatency; latency > 0 {
		t := &fakeToken{err: err, done: make(chan struct{})}
		time.AfterFunc(latency, func() {
			c.mu.Lock()
			c.open = err == nil
			c.mu.Unlock()
			close(t.done)
		})
		return t
	}

	c.mu.Lock()
	c.open = err == nil
	c.mu.Unlock()
	return completedToken(err)
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.open = false
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	if b.stallPublish {
		return &fakeToken{done: make(chan struct{})}
	}
	if err := pop(&b.publishErrs); err != nil {
		return completedToken(err)
	}
	if !c.IsConnectionOpen() {
		return completedToken(fmt.Errorf("not connected"))
	}
	b.published = append(b.published, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  fmt.Sprint(payload),
	})
	return completedToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "subscribe "+topic)
	return completedToken(b.subscribeErr)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.ops = append(b.ops, "unsubscribe "+t)
	}
	return completedToken(nil)
}

// deliver simulates an inbound message routed through paho's default handler.
func (c *fakeClient) deliver(topic, payload string) {
	c.opts.DefaultPublishHandler(c, fakeMessage{topic: topic, payload: []byte(payload)})
}

// drop simulates the broker closing the connection.
func (c *fakeClient) drop(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(c, err)
	}
}

// countingSource is a CredentialSource that counts Resolve calls.
type countingSource struct {
	mu    sync.Mutex
	creds Credentials
	calls int
}

func (s *countingSource) Resolve(context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.creds, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
