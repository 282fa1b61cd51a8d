package remote

import "fmt"

// SubscribeStatus reports what Subscribe did with a topic.
type SubscribeStatus int

// Subscribe outcomes.
const (
	// SubscribeFailed means nothing was recorded (invalid input, or offline
	// with ClearSubscriptionsOnReconnect).
	SubscribeFailed SubscribeStatus = iota

	// Subscribed means the topic is registered and live on the transport.
	Subscribed

	// Deferred means the topic is registered and will be subscribed on the
	// next successful connect.
	Deferred

	// AlreadySubscribed means the topic already had a handler; nothing changed.
	AlreadySubscribed
)

// String returns the status name for logging.
func (s SubscribeStatus) String() string {
	switch s {
	case SubscribeFailed:
		return "failed"
	case Subscribed:
		return "subscribed"
	case Deferred:
		return "deferred"
	case AlreadySubscribed:
		return "already_subscribed"
	default:
		return fmt.Sprintf("SubscribeStatus(%d)", int(s))
	}
}

// Subscribe registers handler for messages on exactly topic.
//
// There can only be one handler per topic; a second Subscribe for the same
// topic returns AlreadySubscribed with ErrAlreadySubscribed and leaves the
// first handler active. Subscribing while offline is expected: the topic is
// recorded and Deferred is returned without error. All registered topics
// are (re-)subscribed on every successful connect.
//
// With ClearSubscriptionsOnReconnect there is nothing to defer to: the
// registry is emptied before the next attempt. Subscribing while offline
// then fails with ErrNotConnected and records nothing.
//
// If the live subscribe call fails, the entry stays registered, Deferred is
// returned with an error wrapping ErrTransportRejected, and the topic is
// retried on the next connect.
func (r *Remote) Subscribe(topic string, handler MessageHandler) (SubscribeStatus, error) {
	if topic == "" {
		return SubscribeFailed, ErrInvalidTopic
	}
	if handler == nil {
		return SubscribeFailed, ErrInvalidHandler
	}
	if r.clearOnConnect && !r.Connected() {
		r.logger.Warn("can only subscribe when connected", "topic", topic)
		return SubscribeFailed, fmt.Errorf("%w: subscribe %s", ErrNotConnected, topic)
	}

	if r.registry.Insert(topic, handler) == Duplicate {
		r.logger.Warn("topic is already subscribed to", "topic", topic)
		return AlreadySubscribed, fmt.Errorf("%w: %s", ErrAlreadySubscribed, topic)
	}

	// Checked after the insert: a connect that races with us either sees the
	// entry in its replay or we see Connected here.
	if !r.Connected() {
		r.logger.Info("not connected, will subscribe once connected", "topic", topic)
		return Deferred, nil
	}

	if err := r.transport.Subscribe(topic, r.subscribeQoS); err != nil {
		return Deferred, fmt.Errorf("%w: subscribe %s: %w", ErrTransportRejected, topic, err)
	}
	return Subscribed, nil
}

// Unsubscribe removes topic from the registry and asks the transport to
// unsubscribe, whatever the connection state. A topic that was never
// subscribed is not an error. A transport failure is returned but the
// entry stays removed.
func (r *Remote) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !r.registry.Remove(topic) {
		r.logger.Debug("unsubscribe for unknown topic", "topic", topic)
	}

	if err := r.transport.Unsubscribe(topic); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", ErrTransportRejected, topic, err)
	}
	return nil
}

// Dispatch routes an inbound message to the handler registered for exactly
// topic. Messages without a handler are dropped. A panicking handler is
// recovered and logged.
func (r *Remote) Dispatch(topic string, payload []byte) {
	handler, ok := r.registry.Lookup(topic)
	if !ok {
		r.logReceive("received message, no callback found", "topic", topic, "size", len(payload))
		return
	}
	r.logReceive("received message", "topic", topic, "size", len(payload))

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message handler panic recovered",
				"topic", topic,
				"panic", rec,
			)
		}
	}()
	handler(topic, payload)
}

func (r *Remote) logReceive(msg string, args ...any) {
	if r.receiveVerbose {
		r.logger.Info(msg, args...)
		return
	}
	r.logger.Debug(msg, args...)
}

// SubscriptionCount returns the number of registered topics.
func (r *Remote) SubscriptionCount() int {
	return r.registry.Len()
}

// HasSubscription checks if a handler is registered for exactly topic.
func (r *Remote) HasSubscription(topic string) bool {
	return r.registry.Has(topic)
}
