package remote

import "fmt"

// API is the consumer-facing surface of a Remote: everything needed to
// publish and subscribe, nothing about lifecycle.
type API interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
	PublishVerbose(topic string, payload []byte, qos byte, retain bool) error
	Subscribe(topic string, handler MessageHandler) (SubscribeStatus, error)
	Unsubscribe(topic string) error
	Connected() bool
	ClientID() Identity
}

var _ API = (*Remote)(nil)

// Publish sends a message to topic.
//
// Nothing is queued: while not connected it returns ErrNotConnected
// without touching the transport. Transport failures wrap
// ErrTransportRejected.
func (r *Remote) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > r.maxMessageSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), r.maxMessageSize)
	}

	if !r.Connected() {
		r.logger.Warn("not connected to server when trying to publish", "topic", topic)
		return ErrNotConnected
	}

	if err := r.transport.Publish(topic, payload, qos, retain); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrTransportRejected, topic, err)
	}
	return nil
}

// PublishVerbose is Publish with the message and the result logged at info.
func (r *Remote) PublishVerbose(topic string, payload []byte, qos byte, retain bool) error {
	if !r.Connected() {
		r.logger.Warn("not connected to server when trying to publish", "topic", topic)
		return ErrNotConnected
	}

	r.logger.Info("about to publish", "topic", topic, "message", string(payload), "retain", retain)
	err := r.Publish(topic, payload, qos, retain)
	r.logger.Info("publish result", "topic", topic, "success", err == nil)
	return err
}

// PublishString is a convenience method that publishes a string payload.
func (r *Remote) PublishString(topic, message string, qos byte, retain bool) error {
	return r.Publish(topic, []byte(message), qos, retain)
}
