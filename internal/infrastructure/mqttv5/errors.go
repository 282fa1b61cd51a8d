package mqttv5

import "errors"

var (
	// ErrNotConnected is returned when no connection is up.
	ErrNotConnected = errors.New("mqttv5: client not connected")

	// ErrConnectionFailed is reported when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqttv5: connection failed")

	// ErrConnectionLost is reported when an established connection drops.
	ErrConnectionLost = errors.New("mqttv5: connection lost")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqttv5: publish failed")

	// ErrSubscribeFailed is returned when a subscribe is refused or fails.
	ErrSubscribeFailed = errors.New("mqttv5: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqttv5: unsubscribe failed")

	// ErrInvalidBroker is returned when the broker address cannot be turned into a URL.
	ErrInvalidBroker = errors.New("mqttv5: invalid broker address")
)
