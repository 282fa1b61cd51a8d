package remote

import "errors"

// Domain-specific errors for remote operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("remote: not connected")

	// ErrAlreadySubscribed is returned when a topic already has a handler.
	// The existing handler is left in place.
	ErrAlreadySubscribed = errors.New("remote: topic already subscribed")

	// ErrTransportRejected is returned when the transport fails a publish,
	// subscribe or unsubscribe call.
	ErrTransportRejected = errors.New("remote: transport rejected operation")

	// ErrConnectFailed describes a failed connect attempt. It is logged and
	// retried on the next interval, never returned to callers.
	ErrConnectFailed = errors.New("remote: connect failed")

	// ErrInvalidIdentity is returned when a client ID contains characters
	// outside [a-zA-Z0-9_].
	ErrInvalidIdentity = errors.New("remote: client id must match [a-zA-Z0-9_]+")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("remote: topic cannot be empty")

	// ErrInvalidQoS is returned when a QoS level above 2 is specified.
	ErrInvalidQoS = errors.New("remote: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidHandler is returned when Subscribe is given a nil handler.
	ErrInvalidHandler = errors.New("remote: handler cannot be nil")

	// ErrPayloadTooLarge is returned when a payload exceeds Options.MaxMessageSize.
	ErrPayloadTooLarge = errors.New("remote: payload exceeds max message size")
)
