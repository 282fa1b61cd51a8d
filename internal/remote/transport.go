package remote

import "fmt"

// EventKind identifies what a transport is reporting.
type EventKind int

// Transport event kinds.
const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventMessage
)

// String returns the event kind for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single notification from the transport.
// Topic and Payload are set for EventMessage; Err may be set for
// EventDisconnected and EventError.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

// ConnectedEvent reports an established connection.
func ConnectedEvent() Event { return Event{Kind: EventConnected} }

// DisconnectedEvent reports a lost connection.
func DisconnectedEvent(err error) Event { return Event{Kind: EventDisconnected, Err: err} }

// ErrorEvent reports a transport error that did not change the connection state.
func ErrorEvent(err error) Event { return Event{Kind: EventError, Err: err} }

// MessageEvent reports an inbound message.
func MessageEvent(topic string, payload []byte) Event {
	return Event{Kind: EventMessage, Topic: topic, Payload: payload}
}

// EventSink receives transport events. *Remote implements it.
type EventSink interface {
	HandleEvent(ev Event)
}

// Transport is the raw publish/subscribe connection the core drives.
//
// Implementations report connection changes and inbound messages to the
// bound EventSink. A successful Connect must be followed by either a
// Connected or a Disconnected event. The core never holds its own locks
// while calling into the transport, so events may be delivered from inside
// Connect.
type Transport interface {
	// Bind registers the sink for all subsequent events.
	Bind(sink EventSink)

	// Connect starts one connection attempt with the given will configured.
	Connect(id Identity, creds Credentials, will LastWill) error

	// Disconnect closes the connection, if any.
	Disconnect()

	// Publish sends a message. It must not queue while offline.
	Publish(topic string, payload []byte, qos byte, retain bool) error

	// Subscribe asks the broker for messages on topic. Re-subscribing an
	// already subscribed topic must be harmless.
	Subscribe(topic string, qos byte) error

	// Unsubscribe cancels a subscription.
	Unsubscribe(topic string) error
}

// Poller is implemented by poll-driven transports. Poll delivers pending
// events to the bound sink synchronously and returns.
type Poller interface {
	Poll()
}
