package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// forceAlways asks connect to replace the transport unconditionally.
const forceAlways = ^uint64(0)

// Logger is the logging interface used by the Session and Dispatcher.
// It is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ClientFactory builds a paho client from options. Tests substitute a fake.
type ClientFactory func(*pahomqtt.ClientOptions) pahomqtt.Client

// Session owns at most one broker transport and provides publish and
// subscribe primitives with retained-value de-duplication.
//
// The transport is created lazily by the first operation that needs it and
// replaced when it is found closed, when a publish fails, or when it is
// older than Options.RenewAfter. Transport creation is serialized: callers
// that race on a missing transport wait for and reuse the one attempt.
//
// A new transport starts with an empty retained-value cache and no broker
// subscriptions. Dispatcher registrations survive a forced reconnect so
// owners can re-subscribe from the SetOnConnect callback; Disconnect and
// Reconfigure drop them.
//
// Inbound messages are dispatched on paho's router goroutine with ordering
// enabled. Handlers must not wait on publish or subscribe tokens.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	opts      Options
	newClient ClientFactory
	now       func() time.Time

	// connMu serializes transport creation and teardown.
	connMu    sync.Mutex
	source    CredentialSource
	creds     Credentials
	haveCreds bool

	// stateMu guards the fields read outside connMu.
	stateMu     sync.RWMutex
	client      pahomqtt.Client
	connectedAt time.Time
	generation  uint64

	retained   map[string]string
	retainedMu sync.Mutex

	dispatcher *Dispatcher

	onConnect  func()
	callbackMu sync.RWMutex

	logger  Logger
	metrics *Metrics
}

// New creates a Session. No I/O happens until the first operation.
// source may be nil if Reconfigure is called before use.
func New(opts Options, source CredentialSource) *Session {
	return &Session{
		opts:       opts.withDefaults(),
		newClient:  pahomqtt.NewClient,
		now:        time.Now,
		source:     source,
		retained:   make(map[string]string),
		dispatcher: NewDispatcher(),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for connection and dispatch events.
// It must be called before the Session is used.
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
	s.dispatcher.SetLogger(logger)
}

// SetMetrics attaches Prometheus metrics. It must be called before the
// Session is used.
func (s *Session) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetClientFactory replaces the paho client constructor.
func (s *Session) SetClientFactory(f ClientFactory) {
	s.connMu.Lock()
	s.newClient = f
	s.connMu.Unlock()
}

// SetOnConnect sets a callback invoked, in its own goroutine, after every
// new transport is established.
func (s *Session) SetOnConnect(callback func()) {
	s.callbackMu.Lock()
	s.onConnect = callback
	s.callbackMu.Unlock()
}

// Connect ensures a live transport exists. With force set, any existing
// transport is torn down and replaced.
//
// Returns an error wrapping ErrConnection if the broker cannot be reached
// or rejects the connection. The Session is then left without a transport
// and the next operation retries.
func (s *Session) Connect(ctx context.Context, force bool) error {
	var stale uint64
	if force {
		stale = forceAlways
	}
	_, _, err := s.connect(ctx, stale)
	return err
}

// connect returns the current transport, creating a new one when needed.
// stale is the generation the caller saw fail; zero means no failure.
// A forced replacement only happens when that generation is still current,
// so concurrent failing publishers trigger a single reconnect.
func (s *Session) connect(ctx context.Context, stale uint64) (pahomqtt.Client, uint64, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	client, gen, at := s.snapshot()

	var reason string
	switch {
	case client == nil:
		reason = connectInitial
	case stale != 0 && (stale == forceAlways || stale == gen):
		reason = connectForced
	case !client.IsConnectionOpen():
		reason = connectLost
	case s.opts.RenewAfter > 0 && s.now().Sub(at) >= s.opts.RenewAfter:
		reason = connectRenewal
	default:
		return client, gen, nil
	}

	if reason == connectRenewal || !s.haveCreds {
		if err := s.resolveCredentials(ctx); err != nil {
			return nil, 0, err
		}
	}

	s.teardown(client)
	s.setTransport(nil)

	return s.dial(ctx, reason)
}

func (s *Session) resolveCredentials(ctx context.Context) error {
	if s.source == nil {
		if s.haveCreds {
			return nil
		}
		s.metrics.connectError()
		return fmt.Errorf("%w: %w", ErrConnection, ErrNoBroker)
	}

	creds, err := s.source.Resolve(ctx)
	if err != nil {
		s.metrics.connectError()
		return fmt.Errorf("%w: resolving credentials: %w", ErrConnection, err)
	}
	s.creds = creds
	s.haveCreds = true
	return nil
}

// dial creates and connects a new transport. Caller holds connMu.
func (s *Session) dial(ctx context.Context, reason string) (pahomqtt.Client, uint64, error) {
	opts, err := buildClientOptions(s.creds, s.opts)
	if err != nil {
		s.metrics.connectError()
		return nil, 0, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	opts.SetDefaultPublishHandler(s.route)
	opts.SetConnectionLostHandler(s.handleConnectionLost)

	s.logger.Info("starting MQTT connection",
		"broker", opts.Servers[0].String(),
		"username", s.creds.Username,
		"reason", reason,
	)

	client := s.newClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, s.opts.ConnectTimeout); err != nil {
		go s.abandon(client, token)
		s.metrics.connectError()
		s.logger.Error("error connecting to MQTT broker",
			"broker", opts.Servers[0].String(),
			"error", err,
		)
		return nil, 0, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	gen := s.setTransport(client)
	s.clearRetained()
	s.metrics.connect(reason)
	s.logger.Info("connected to MQTT broker",
		"broker", opts.Servers[0].String(),
		"client_id", opts.ClientID,
		"generation", gen,
	)

	s.callbackMu.RLock()
	callback := s.onConnect
	s.callbackMu.RUnlock()
	if callback != nil {
		go callback()
	}

	return client, gen, nil
}

// abandon closes a client whose handshake the session stopped waiting for,
// once paho settles the attempt, so a late success cannot leave an orphan
// connection behind.
func (s *Session) abandon(client pahomqtt.Client, token pahomqtt.Token) {
	<-token.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("error closing abandoned MQTT connection", "panic", r)
		}
	}()
	client.Disconnect(0)
}

// teardown closes client best-effort. Caller holds connMu.
func (s *Session) teardown(client pahomqtt.Client) {
	if client == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("error closing MQTT connection", "panic", r)
		}
	}()
	client.Disconnect(defaultDisconnectQuiesce)
	s.metrics.disconnected()
}

func (s *Session) snapshot() (pahomqtt.Client, uint64, time.Time) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.client, s.generation, s.connectedAt
}

// setTransport installs client and returns its generation. A nil client
// keeps the generation so stale failures never match a future transport.
func (s *Session) setTransport(client pahomqtt.Client) uint64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.client = client
	if client != nil {
		s.generation++
		s.connectedAt = s.now()
	}
	return s.generation
}

// handleConnectionLost is invoked by paho when an established transport drops.
// The transport is left in place; the next operation notices it is closed.
func (s *Session) handleConnectionLost(client pahomqtt.Client, err error) {
	current, _, _ := s.snapshot()
	if current != client {
		return
	}
	s.metrics.disconnected()
	s.logger.Warn("MQTT connection lost", "error", err)
}

// route hands every inbound message to the dispatcher.
func (s *Session) route(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.metrics.message()
	if n := s.dispatcher.Dispatch(msg.Topic(), msg.Payload()); n == 0 {
		s.logger.Debug("MQTT message without handler", "topic", msg.Topic())
	}
}

// Disconnect closes the transport if present and returns the Session to
// its initial state: no transport, empty retained-value cache and no
// registered handlers. Close errors are logged, not returned.
func (s *Session) Disconnect() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.disconnectLocked()
}

func (s *Session) disconnectLocked() {
	client, _, _ := s.snapshot()
	s.teardown(client)
	s.setTransport(nil)
	s.clearRetained()
	s.dispatcher.Clear()
	s.metrics.setSubscriptions(0)
	if client != nil {
		s.logger.Info("disconnected from MQTT broker")
	}
}

// Reconfigure replaces the credentials and disconnects. The next operation
// connects with the new credentials. A later staleness renewal re-resolves
// credentials from the CredentialSource, if one was given to New.
func (s *Session) Reconfigure(creds Credentials) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.creds = creds
	s.haveCreds = true
	s.disconnectLocked()
	s.logger.Info("MQTT credentials reconfigured", "broker", creds.String())
}

// IsConnected reports whether a transport exists and is open.
func (s *Session) IsConnected() bool {
	client, _, _ := s.snapshot()
	return client != nil && client.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected when no transport is open.
// It never dials; a healthy idle Session that has not connected yet reports
// ErrNotConnected too.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Generation returns the number of transports established so far.
func (s *Session) Generation() uint64 {
	_, gen, _ := s.snapshot()
	return gen
}

// waitToken waits for a paho token, the context, or timeout, whichever
// comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
