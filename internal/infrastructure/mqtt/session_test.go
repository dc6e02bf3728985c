package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestSession(t *testing.T, opts Options) (*Session, *fakeBroker) {
	t.Helper()
	broker := &fakeBroker{}
	s := New(opts, StaticCredentials{URI: "mqtt://broker.local:1883/some/path", Username: "scrypted", Password: "pw"})
	s.SetClientFactory(broker.factory)
	return s, broker
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestSession_LazyConnect(t *testing.T) {
	s, broker := newTestSession(t, Options{})

	if broker.clientCount() != 0 {
		t.Fatalf("New() created %d clients, want 0", broker.clientCount())
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true before any operation")
	}

	if err := s.Publish(context.Background(), "neolink/Garage/query/battery", "", false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if broker.clientCount() != 1 {
		t.Fatalf("clientCount = %d, want 1", broker.clientCount())
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false after publish")
	}
}

func TestSession_BrokerURINormalized(t *testing.T) {
	s, broker := newTestSession(t, Options{})

	if err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	opts := broker.last().opts
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883/" {
		t.Errorf("broker = %q, want %q", got, "tcp://broker.local:1883/")
	}
	if opts.Username != "scrypted" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q, want scrypted/pw", opts.Username, opts.Password)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
}

func TestSession_ConnectError(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	broker.connectErrs = []error{errors.New("connection refused")}

	err := s.Connect(context.Background(), false)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect() error = %v, want ErrConnection", err)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}

	// The next operation retries.
	if err := s.Publish(context.Background(), "t", "v", false); err != nil {
		t.Fatalf("Publish() after failed connect error = %v", err)
	}
	if broker.clientCount() != 2 {
		t.Errorf("clientCount = %d, want 2", broker.clientCount())
	}
}

func TestSession_ConnectWithoutCredentials(t *testing.T) {
	s := New(Options{}, nil)
	s.SetClientFactory((&fakeBroker{}).factory)

	err := s.Connect(context.Background(), false)
	if !errors.Is(err, ErrConnection) || !errors.Is(err, ErrNoBroker) {
		t.Fatalf("Connect() error = %v, want ErrConnection wrapping ErrNoBroker", err)
	}
}

func TestSession_ConcurrentConnectCollapses(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	broker.connectDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Connect(context.Background(), false)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	if broker.clientCount() != 1 {
		t.Errorf("clientCount = %d, want 1", broker.clientCount())
	}
}

func TestSession_StaleReconnectHappensOnce(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	_, gen, err := s.connect(ctx, 0)
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}

	// Two callers both saw generation gen fail.
	if _, _, err := s.connect(ctx, gen); err != nil {
		t.Fatalf("first forced connect error = %v", err)
	}
	if _, _, err := s.connect(ctx, gen); err != nil {
		t.Fatalf("second forced connect error = %v", err)
	}

	if broker.clientCount() != 2 {
		t.Errorf("clientCount = %d, want 2 (one reconnect)", broker.clientCount())
	}
}

func TestSession_ForceReconnect(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := broker.last()

	if err := s.Connect(ctx, true); err != nil {
		t.Fatalf("Connect(force) error = %v", err)
	}

	if broker.clientCount() != 2 {
		t.Fatalf("clientCount = %d, want 2", broker.clientCount())
	}
	if first.IsConnectionOpen() {
		t.Error("old transport still open after forced reconnect")
	}
	if s.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", s.Generation())
	}
}

func TestSession_ReconnectAfterConnectionLost(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	if err := s.Publish(ctx, "t", "on", true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	broker.last().drop(errors.New("EOF"))

	if s.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}

	// New transport, empty retained cache: the same value is written again.
	if err := s.Publish(ctx, "t", "on", true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if broker.clientCount() != 2 {
		t.Errorf("clientCount = %d, want 2", broker.clientCount())
	}
	if n := len(broker.messages()); n != 2 {
		t.Errorf("published %d messages, want 2", n)
	}
}

func TestSession_RenewalAfterStaleness(t *testing.T) {
	broker := &fakeBroker{}
	source := &countingSource{creds: Credentials{URI: "mqtt://broker:1883"}}
	s := New(Options{RenewAfter: 30 * time.Minute}, source)
	s.SetClientFactory(broker.factory)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	now = now.Add(29 * time.Minute)
	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if broker.clientCount() != 1 {
		t.Fatalf("clientCount = %d before renewal age, want 1", broker.clientCount())
	}

	now = now.Add(2 * time.Minute)
	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if broker.clientCount() != 2 {
		t.Errorf("clientCount = %d after renewal age, want 2", broker.clientCount())
	}
	if source.count() != 2 {
		t.Errorf("credentials resolved %d times, want 2", source.count())
	}
}

func TestSession_OnConnectCallback(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	called := make(chan struct{}, 2)
	s.SetOnConnect(func() { called <- struct{}{} })

	if err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("OnConnect callback not invoked")
	}
}

func TestSession_HealthCheck(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	if err := s.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before connect = %v, want ErrNotConnected", err)
	}
	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context = nil, want error")
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestSession_RetainedPublishDeduplicated(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()
	topic := TopicsFor("Garage").SirenControl

	for range 2 {
		if err := s.Publish(ctx, topic, "on", true); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if n := len(broker.messages()); n != 1 {
		t.Fatalf("identical retained publishes wrote %d messages, want 1", n)
	}

	if err := s.Publish(ctx, topic, "off", true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	msgs := broker.messages()
	if len(msgs) != 2 || msgs[1].payload != "off" || !msgs[1].retained {
		t.Fatalf("messages = %+v, want second retained off", msgs)
	}
	if v, _ := s.RetainedValue(topic); v != "off" {
		t.Errorf("RetainedValue() = %q, want off", v)
	}
}

func TestSession_NonRetainedNeverDeduplicated(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	for range 2 {
		if err := s.Publish(ctx, "neolink/Garage/control/ptz", "left 15.0", false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if n := len(broker.messages()); n != 2 {
		t.Errorf("non-retained publishes wrote %d messages, want 2", n)
	}
	if _, ok := s.RetainedValue("neolink/Garage/control/ptz"); ok {
		t.Error("non-retained publish updated the retained cache")
	}
}

func TestSession_PublishRetriesOnceAfterForcedReconnect(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	broker.publishErrs = []error{errors.New("broken pipe")}

	if err := s.Publish(ctx, "t", "on", true); err != nil {
		t.Fatalf("Publish() error = %v, want success on retry", err)
	}

	if broker.clientCount() != 2 {
		t.Errorf("clientCount = %d, want 2", broker.clientCount())
	}
	if broker.attempts != 2 {
		t.Errorf("publish attempts = %d, want 2", broker.attempts)
	}
	if n := len(broker.messages()); n != 1 {
		t.Errorf("delivered %d messages, want 1", n)
	}
	if v, ok := s.RetainedValue("t"); !ok || v != "on" {
		t.Errorf("RetainedValue() = %q, %v; want on, true", v, ok)
	}
}

func TestSession_PublishFailsAfterSingleRetry(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()
	broker.publishErrs = []error{errors.New("broken pipe"), errors.New("broken pipe"), errors.New("unused")}

	err := s.Publish(ctx, "t", "on", true)
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("Publish() error = %v, want ErrPublish", err)
	}
	if broker.attempts != 2 {
		t.Errorf("publish attempts = %d, want exactly 2", broker.attempts)
	}
	if _, ok := s.RetainedValue("t"); ok {
		t.Error("failed publish updated the retained cache")
	}
}

func TestSession_PublishCancelledKeepsTransport(t *testing.T) {
	s, broker := newTestSession(t, Options{})

	if err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := broker.last()
	gen := s.Generation()
	broker.stallPublish = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Publish(ctx, "neolink/Garage/control/siren", "on", true)
	if !errors.Is(err, ErrPublish) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish() error = %v, want ErrPublish wrapping DeadlineExceeded", err)
	}
	if broker.clientCount() != 1 || s.Generation() != gen {
		t.Errorf("clients = %d, generation %d -> %d; want the transport kept", broker.clientCount(), gen, s.Generation())
	}
	if n := first.disconnectCount(); n != 0 {
		t.Errorf("transport disconnected %d times, want 0", n)
	}
	if broker.attempts != 1 {
		t.Errorf("publish attempts = %d, want 1", broker.attempts)
	}
	if _, ok := s.RetainedValue("neolink/Garage/control/siren"); ok {
		t.Error("cancelled publish updated the retained cache")
	}
}

func TestSession_AbandonedDialIsClosed(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	broker.connectLatency = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := s.Connect(ctx, false); !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect() error = %v, want ErrConnection", err)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after abandoned dial")
	}

	abandoned := broker.last()
	deadline := time.Now().Add(2 * time.Second)
	for abandoned.disconnectCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("late handshake left the abandoned client open")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if abandoned.IsConnectionOpen() {
		t.Error("abandoned client still open after Disconnect")
	}
}

func TestSession_SerializationError(t *testing.T) {
	s, broker := newTestSession(t, Options{})

	err := s.Publish(context.Background(), "t", make(chan int), true)
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("Publish() error = %v, want ErrSerialization", err)
	}
	if broker.clientCount() != 0 {
		t.Errorf("serialization failure created %d clients, want 0", broker.clientCount())
	}
}

func TestSession_PublishInvalidTopic(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	if err := s.Publish(context.Background(), "", "on", true); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSession_SubscribeUnsubscribesFirst(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	topic := TopicsFor("Garage").MotionStatus

	if err := s.Subscribe(context.Background(), topic, func(string, string) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ops := broker.operations()
	want := []string{"unsubscribe " + topic, "subscribe " + topic}
	if len(ops) != len(want) {
		t.Fatalf("operations = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("operations[%d] = %q, want %q", i, ops[i], want[i])
		}
	}
}

func TestSession_SubscribeDispatchesExactTopic(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()
	garage := TopicsFor("Garage")
	front := TopicsFor("FrontDoor")

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(topic, payload string) {
		mu.Lock()
		got[topic] = append(got[topic], payload)
		mu.Unlock()
	}

	if err := s.Subscribe(ctx, garage.MotionStatus, record); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := s.Subscribe(ctx, front.MotionStatus, record); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	c := broker.last()
	c.deliver(garage.MotionStatus, "on")
	c.deliver(front.MotionStatus, "off")
	c.deliver(garage.BatteryStatus, "42")

	mu.Lock()
	defer mu.Unlock()
	if len(got[garage.MotionStatus]) != 1 || got[garage.MotionStatus][0] != "on" {
		t.Errorf("garage motion = %v, want [on]", got[garage.MotionStatus])
	}
	if len(got[front.MotionStatus]) != 1 || got[front.MotionStatus][0] != "off" {
		t.Errorf("front motion = %v, want [off]", got[front.MotionStatus])
	}
	if len(got[garage.BatteryStatus]) != 0 {
		t.Errorf("unsubscribed topic dispatched: %v", got[garage.BatteryStatus])
	}
}

func TestSession_ResubscribeReplacesHandler(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	first, second := 0, 0
	_ = s.Subscribe(ctx, "t", func(string, string) { first++ })
	_ = s.Subscribe(ctx, "t", func(string, string) { second++ })

	broker.last().deliver("t", "x")

	if first != 0 || second != 1 {
		t.Errorf("first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestSession_SubscribeFailureRollsBack(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	broker.subscribeErr = errors.New("not authorized")

	err := s.Subscribe(context.Background(), "t", func(string, string) {})
	if !errors.Is(err, ErrSubscribe) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribe", err)
	}
	if s.HasSubscription("t") {
		t.Error("HasSubscription() = true after failed subscribe")
	}
}

func TestSession_UnsubscribeStopsHandler(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	calls := 0
	_ = s.Subscribe(ctx, "t", func(string, string) { calls++ })
	if err := s.Unsubscribe(ctx, "t"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	broker.last().deliver("t", "x")

	if calls != 0 {
		t.Errorf("handler fired %d times after unsubscribe", calls)
	}
}

func TestSession_UnsubscribeUnknownIsNoop(t *testing.T) {
	s, broker := newTestSession(t, Options{})

	if err := s.Unsubscribe(context.Background(), "never/subscribed"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if broker.clientCount() != 0 {
		t.Errorf("no-op unsubscribe created %d clients", broker.clientCount())
	}
}

func TestSession_UnsubscribeOwnedKeepsOtherOwners(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	var a, b int
	_ = s.SubscribeOwned(ctx, "a", "t", func(string, string) { a++ })
	_ = s.SubscribeOwned(ctx, "b", "t", func(string, string) { b++ })

	if err := s.UnsubscribeOwned(ctx, "a", "t"); err != nil {
		t.Fatalf("UnsubscribeOwned() error = %v", err)
	}
	broker.last().deliver("t", "x")

	if a != 0 || b != 1 {
		t.Errorf("a=%d b=%d, want 0 and 1", a, b)
	}
	for _, op := range broker.operations()[4:] {
		if op == "unsubscribe t" {
			t.Error("broker unsubscribe issued while another owner remains")
		}
	}
}

// =============================================================================
// Disconnect / Reconfigure Tests
// =============================================================================

func TestSession_DisconnectClearsState(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	_ = s.Subscribe(ctx, "t", func(string, string) {})
	_ = s.Publish(ctx, "r", "on", true)
	first := broker.last()

	s.Disconnect()

	if s.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
	if first.IsConnectionOpen() {
		t.Error("transport still open after Disconnect")
	}
	if s.HasSubscription("t") {
		t.Error("subscription registry not cleared")
	}
	if _, ok := s.RetainedValue("r"); ok {
		t.Error("retained cache not cleared")
	}

	// Disconnect with no transport is safe.
	s.Disconnect()

	if err := s.Publish(ctx, "r", "on", true); err != nil {
		t.Fatalf("Publish() after Disconnect error = %v", err)
	}
	if n := len(broker.messages()); n != 2 {
		t.Errorf("published %d messages, want 2 (cache cleared)", n)
	}
}

func TestSession_ReconfigureUsesNewCredentials(t *testing.T) {
	s, broker := newTestSession(t, Options{})
	ctx := context.Background()

	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s.Reconfigure(Credentials{URI: "mqtts://other:8883", Username: "alice", Password: "secret"})
	if s.IsConnected() {
		t.Error("IsConnected() = true right after Reconfigure")
	}

	if err := s.Connect(ctx, false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	opts := broker.last().opts
	if got := opts.Servers[0].String(); got != "ssl://other:8883/" {
		t.Errorf("broker = %q, want ssl://other:8883/", got)
	}
	if opts.Username != "alice" {
		t.Errorf("username = %q, want alice", opts.Username)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Error("TLS config should skip verification for mqtts brokers")
	}
}
