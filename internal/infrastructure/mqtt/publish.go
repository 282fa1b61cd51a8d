package mqtt

import (
	"fmt"
)

// Publish sends a message on the current connection.
//
// It never queues: without an open connection it returns ErrNotConnected.
// The call waits up to defaultPublishTimeout for paho to accept the message
// (QoS 0) or for the broker acknowledgment (QoS 1 and 2).
func (t *Transport) Publish(topic string, payload []byte, qos byte, retain bool) error {
	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
