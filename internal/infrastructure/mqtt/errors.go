package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned by HealthCheck when no transport is open.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnection is returned when the broker is unreachable or refuses
	// the connection (bad credentials, TLS failure, timeout).
	ErrConnection = errors.New("mqtt: connection failed")

	// ErrSerialization is returned when a publish value cannot be rendered
	// to a payload. The publish is aborted and not retried.
	ErrSerialization = errors.New("mqtt: payload serialization failed")

	// ErrPublish is returned when a publish fails again after the single
	// forced-reconnect retry.
	ErrPublish = errors.New("mqtt: publish failed")

	// ErrSubscribe is returned when a subscribe operation fails.
	ErrSubscribe = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribe is returned when an unsubscribe operation fails.
	ErrUnsubscribe = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidBrokerURI is returned when a broker URI cannot be parsed or
	// uses an unsupported scheme.
	ErrInvalidBrokerURI = errors.New("mqtt: invalid broker URI")

	// ErrNoBroker is returned by a CredentialProvider when neither the host
	// broker nor the plugin override carries a broker URI.
	ErrNoBroker = errors.New("mqtt: no broker configured")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
