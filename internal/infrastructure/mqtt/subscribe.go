package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers handler for messages on exactly topic. A repeated
// call for the same topic replaces the earlier handler.
//
// The topic is unsubscribed at the broker first and then subscribed again,
// so calling Subscribe twice is safe. The handler is registered before the
// broker subscription so retained messages delivered immediately are not
// lost.
func (s *Session) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	return s.SubscribeOwned(ctx, "", topic, handler)
}

// SubscribeOwned is Subscribe with an owner key. Handlers from different
// owners on the same topic all fire, in registration order. A repeated call
// by the same owner replaces that owner's handler.
func (s *Session) SubscribeOwned(ctx context.Context, owner, topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribe, topic)
	}

	client, _, err := s.connect(ctx, 0)
	if err != nil {
		return err
	}

	if err := waitToken(ctx, client.Unsubscribe(topic), s.opts.PublishTimeout); err != nil {
		s.logger.Debug("unsubscribe before subscribe failed", "topic", topic, "error", err)
	}

	s.dispatcher.Register(topic, owner, handler)

	if err := waitToken(ctx, client.Subscribe(topic, s.opts.QoS, nil), s.opts.PublishTimeout); err != nil {
		s.dispatcher.RemoveOwner(topic, owner)
		s.metrics.setSubscriptions(s.dispatcher.Len())
		return fmt.Errorf("%w: %s: %w", ErrSubscribe, topic, err)
	}

	s.metrics.setSubscriptions(s.dispatcher.Len())
	s.logger.Debug("subscribed", "topic", topic, "owner", owner)
	return nil
}

// Unsubscribe removes the broker subscription and every handler for topic.
// Unsubscribing a topic with no registered handler is a no-op.
func (s *Session) Unsubscribe(ctx context.Context, topic string) error {
	if !s.dispatcher.Has(topic) {
		return nil
	}

	s.dispatcher.Remove(topic)
	s.metrics.setSubscriptions(s.dispatcher.Len())

	return s.brokerUnsubscribe(ctx, topic)
}

// UnsubscribeOwned removes owner's handler for topic. The broker
// subscription is dropped once no other owner remains.
func (s *Session) UnsubscribeOwned(ctx context.Context, owner, topic string) error {
	if !s.dispatcher.Has(topic) {
		return nil
	}

	remaining := s.dispatcher.RemoveOwner(topic, owner)
	s.metrics.setSubscriptions(s.dispatcher.Len())
	if remaining {
		return nil
	}

	return s.brokerUnsubscribe(ctx, topic)
}

func (s *Session) brokerUnsubscribe(ctx context.Context, topic string) error {
	client, _, err := s.connect(ctx, 0)
	if err != nil {
		return err
	}

	if err := waitToken(ctx, client.Unsubscribe(topic), s.opts.PublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribe, topic, err)
	}
	return nil
}

// Subscriptions returns the topics that currently have handlers.
func (s *Session) Subscriptions() []string {
	return s.dispatcher.Topics()
}

// HasSubscription reports whether topic has at least one handler.
func (s *Session) HasSubscription(topic string) bool {
	return s.dispatcher.Has(topic)
}
