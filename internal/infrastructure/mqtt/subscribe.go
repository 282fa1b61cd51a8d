package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe asks the broker for messages on topic.
//
// No per-topic paho callback is installed; messages arrive through the
// default publish handler and are reported as Message events. A SUBACK
// refusal (0x80) is returned as ErrSubscribeFailed.
func (t *Transport) Subscribe(topic string, qos byte) error {
	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == subackFailure {
			return fmt.Errorf("%w: broker refused %q", ErrSubscribeFailed, topic)
		}
	}

	return nil
}

// Unsubscribe cancels a subscription on the current connection.
func (t *Transport) Unsubscribe(topic string) error {
	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}
