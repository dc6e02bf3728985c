package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the broker CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultClientIDPrefix prefixes generated client IDs.
	defaultClientIDPrefix = "neolinkd"

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options tunes a Session. Zero values fall back to package defaults,
// except RenewAfter where zero disables renewal.
type Options struct {
	ClientIDPrefix string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// RenewAfter is the maximum age of a transport before the next
	// operation replaces it with freshly resolved credentials.
	RenewAfter time.Duration
}

// OptionsFromConfig converts the YAML MQTT section into Session options.
func OptionsFromConfig(cfg config.MQTTConfig) Options {
	return Options{
		ClientIDPrefix: cfg.ClientIDPrefix,
		QoS:            byte(cfg.QoS), //nolint:gosec // validated to 0..2 by config.Validate
		KeepAlive:      cfg.KeepAlive,
		ConnectTimeout: cfg.ConnectTimeout,
		PublishTimeout: cfg.PublishTimeout,
		RenewAfter:     cfg.RenewAfter,
	}
}

func (o Options) withDefaults() Options {
	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = defaultClientIDPrefix
	}
	if o.QoS > maxQoS {
		o.QoS = maxQoS
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.RenewAfter < 0 {
		o.RenewAfter = 0
	}
	return o
}

// newClientID returns a unique client ID so an overlapping old transport
// is never kicked by the broker for a duplicate ID.
func (o Options) newClientID() string {
	return fmt.Sprintf("%s-%s", o.ClientIDPrefix, uuid.NewString()[:8])
}

// NormalizeBrokerURI strips the path, query and fragment from a broker URI
// and guarantees a trailing slash. The mqtt and mqtts schemes are mapped to
// paho's tcp and ssl. A bare host:port is treated as mqtt://host:port.
//
//	NormalizeBrokerURI("mqtt://broker:1883/some/path") // "tcp://broker:1883/"
func NormalizeBrokerURI(raw string) (string, error) {
	u, err := parseBrokerURI(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func parseBrokerURI(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBrokerURI)
	}
	if !strings.Contains(raw, "://") {
		raw = "mqtt://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBrokerURI, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidBrokerURI, raw)
	}

	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		u.Scheme = "tcp"
	case "mqtts", "ssl", "tls":
		u.Scheme = "ssl"
	case "ws", "wss":
		u.Scheme = strings.ToLower(u.Scheme)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURI, u.Scheme)
	}

	u.Path = "/"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	return u, nil
}

// buildClientOptions creates paho options for one transport.
//
// This configures:
//   - Normalized broker URL
//   - Credentials (falling back to userinfo embedded in the URI)
//   - TLS without certificate verification for ssl/wss brokers
//   - Clean session with paho's own reconnect disabled; the Session
//     reconnects lazily on the next operation instead
func buildClientOptions(creds Credentials, o Options) (*pahomqtt.ClientOptions, error) {
	u, err := parseBrokerURI(creds.URI)
	if err != nil {
		return nil, err
	}

	username, password := creds.Username, creds.Password
	if username == "" && u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	u.User = nil

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(u.String())
	opts.SetClientID(o.newClientID())

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)
	opts.SetWriteTimeout(o.PublishTimeout)

	if u.Scheme == "ssl" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: true, //nolint:gosec // home brokers commonly run self-signed certificates
		})
	}

	return opts, nil
}
