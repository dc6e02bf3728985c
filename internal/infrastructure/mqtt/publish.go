package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish renders value and sends it to topic.
//
// When retain is true and the last value successfully published to topic
// on the current transport renders identically, the call is a no-op.
//
// A transport failure triggers exactly one forced reconnect and one retry.
// Cancellation of ctx is returned as is and leaves the transport alone.
// If the retry fails too, the error wraps ErrPublish. Rendering failures
// wrap ErrSerialization and are never retried.
//
// Example:
//
//	topics := mqtt.TopicsFor("Garage")
//	err := session.Publish(ctx, topics.SirenControl, "on", true)
func (s *Session) Publish(ctx context.Context, topic string, value any, retain bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	payload, err := Render(value)
	if err != nil {
		s.logger.Error("error rendering MQTT publish value", "topic", topic, "error", err)
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublish, len(payload), maxPayloadSize)
	}

	if retain && s.isRetained(topic, payload) {
		s.metrics.publish(publishSuppressed)
		s.logger.Debug("skipping publish, same as previous value", "topic", topic, "value", payload)
		return nil
	}

	client, gen, err := s.connect(ctx, 0)
	if err != nil {
		s.metrics.publish(publishFailed)
		return err
	}

	s.logger.Debug("publishing", "topic", topic, "value", payload, "retain", retain)
	if err := s.send(ctx, client, topic, payload, retain); err != nil {
		// The caller gave up; the transport is not known to be broken.
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.publish(publishFailed)
			return fmt.Errorf("%w: %s: %w", ErrPublish, topic, ctxErr)
		}

		s.metrics.publish(publishRetried)
		s.logger.Warn("error publishing to MQTT, reconnecting", "topic", topic, "error", err)

		client, _, err = s.connect(ctx, gen)
		if err != nil {
			s.metrics.publish(publishFailed)
			return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
		}
		if err := s.send(ctx, client, topic, payload, retain); err != nil {
			s.metrics.publish(publishFailed)
			s.logger.Error("error publishing to MQTT after reconnect", "topic", topic, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
		}
	}

	if retain {
		s.remember(topic, payload)
	}
	s.metrics.publish(publishSent)
	return nil
}

func (s *Session) send(ctx context.Context, client pahomqtt.Client, topic, payload string, retain bool) error {
	token := client.Publish(topic, s.opts.QoS, retain, payload)
	return waitToken(ctx, token, s.opts.PublishTimeout)
}

func (s *Session) isRetained(topic, payload string) bool {
	s.retainedMu.Lock()
	defer s.retainedMu.Unlock()
	last, ok := s.retained[topic]
	return ok && last == payload
}

func (s *Session) remember(topic, payload string) {
	s.retainedMu.Lock()
	s.retained[topic] = payload
	s.retainedMu.Unlock()
}

func (s *Session) clearRetained() {
	s.retainedMu.Lock()
	s.retained = make(map[string]string)
	s.retainedMu.Unlock()
}

// RetainedValue returns the cached retained payload for topic, if any.
func (s *Session) RetainedValue(topic string) (string, bool) {
	s.retainedMu.Lock()
	defer s.retainedMu.Unlock()
	v, ok := s.retained[topic]
	return v, ok
}
